package main

import (
	"github.com/ValentinKolb/mgLock/cmd"
)

func main() {
	cmd.Execute()
}
