package bench

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/mgLock/cmd/util"
	"github.com/ValentinKolb/mgLock/lib/lock"
	"github.com/ValentinKolb/mgLock/lib/lock/engines/banyan"
	lockutil "github.com/ValentinKolb/mgLock/lib/lock/util"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	// BenchCmd measures lock hierarchy throughput under configurable
	// contention.
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the lock hierarchy under contention",
		Long:    "",
		RunE:    run,
		PreRunE: processConfig,
	}

	benchWorkers     = 10
	benchDatabases   = 4
	benchCollections = 8
	benchDurationSec = 5
	benchSkip        = make([]string, 0)
)

func init() {
	// add flags
	key := "workers"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent workers"))
	key = "databases"
	BenchCmd.Flags().Int(key, 4, util.WrapString("Number of distinct databases the workers spread over"))
	key = "collections"
	BenchCmd.Flags().Int(key, 8, util.WrapString("Number of collections per database"))
	key = "duration"
	BenchCmd.Flags().Int(key, 5, util.WrapString("Duration of the fairness stress phase in seconds"))
	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. coll-write,global-read)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "metrics"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Dump the engine's Prometheus metrics after the run"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchWorkers = viper.GetInt("workers")
	benchDatabases = viper.GetInt("databases")
	benchCollections = viper.GetInt("collections")
	benchDurationSec = viper.GetInt("duration")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = strings.Split(skip, ",")
	}

	return nil
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Lock hierarchy benchmark")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Workers:     %d\n", benchWorkers)
	fmt.Printf("Databases:   %d\n", benchDatabases)
	fmt.Printf("Collections: %d per database\n", benchCollections)
	fmt.Println()

	mgr := banyan.NewLockManager()
	gate := lock.NewPBWMGate()

	results := make(map[string]testing.BenchmarkResult)
	timers := make(map[string]gometrics.Timer)

	for _, w := range []workload{
		{name: "coll-write", run: collWrite},
		{name: "coll-read", run: collRead},
		{name: "db-write", run: dbWrite},
		{name: "global-read", run: globalRead},
		{name: "mixed", run: mixed},
	} {
		w := w
		timer := gometrics.NewTimer()
		timers[w.name] = timer

		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(w.name) {
				return
			}

			b.SetParallelism(benchWorkers)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				l := mgr.NewLocker()
				rng := rand.New(rand.NewSource(time.Now().UnixNano()))
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := w.run(l, gate, rng, counter); err != nil {
						b.Errorf("(%s) - %v", w.name, err)
						return
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		results[w.name] = result
		printResult(w.name, result, timer)
	}

	if err := stressPhase(mgr, gate); err != nil {
		return err
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, timers); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	if viper.GetBool("metrics") {
		fmt.Println("\nEngine metrics:")
		mgr.WritePrometheus(os.Stdout)
	}

	return nil
}

// --------------------------------------------------------------------------
// Workloads
// --------------------------------------------------------------------------

// workload is one benchmark scenario, executed once per iteration with a
// worker-private locker.
type workload struct {
	name string
	run  func(l lock.Locker, gate *lock.PBWMGate, rng *rand.Rand, counter int) error
}

func dbName(rng *rand.Rand) string {
	return fmt.Sprintf("bench-%d", rng.Intn(benchDatabases))
}

func nsName(rng *rand.Rand) string {
	return fmt.Sprintf("%s.coll-%d", dbName(rng), rng.Intn(benchCollections))
}

// collWrite walks the full write hierarchy down to one collection.
func collWrite(l lock.Locker, gate *lock.PBWMGate, rng *rand.Rand, _ int) error {
	ns := nsName(rng)
	db, err := lock.NewDBLock(l, gate, lock.NsToDatabase(ns), lock.ModeIX, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	coll, err := lock.NewCollectionLock(l, ns, lock.ModeIX, nil)
	if err != nil {
		return err
	}
	coll.Close()
	return nil
}

// collRead walks the read hierarchy down to one collection.
func collRead(l lock.Locker, gate *lock.PBWMGate, rng *rand.Rand, _ int) error {
	ns := nsName(rng)
	db, err := lock.NewDBLock(l, gate, lock.NsToDatabase(ns), lock.ModeIS, nil)
	if err != nil {
		return err
	}
	defer db.Close()
	coll, err := lock.NewCollectionLock(l, ns, lock.ModeIS, nil)
	if err != nil {
		return err
	}
	coll.Close()
	return nil
}

// dbWrite takes one whole database exclusively.
func dbWrite(l lock.Locker, gate *lock.PBWMGate, rng *rand.Rand, _ int) error {
	db, err := lock.NewDBLock(l, gate, dbName(rng), lock.ModeX, nil)
	if err != nil {
		return err
	}
	db.Close()
	return nil
}

// globalRead takes the global lock shared.
func globalRead(l lock.Locker, gate *lock.PBWMGate, _ *rand.Rand, _ int) error {
	gr, err := lock.NewGlobalRead(l, gate)
	if err != nil {
		return err
	}
	gr.Close()
	return nil
}

// mixed interleaves the other workloads the way a live workload would.
func mixed(l lock.Locker, gate *lock.PBWMGate, rng *rand.Rand, counter int) error {
	switch counter % 4 {
	case 0, 1:
		return collRead(l, gate, rng, counter)
	case 2:
		return collWrite(l, gate, rng, counter)
	default:
		return dbWrite(l, gate, rng, counter)
	}
}

// --------------------------------------------------------------------------
// Fairness Stress Phase
// --------------------------------------------------------------------------

// stressPhase runs every worker against a single database for a fixed
// duration and reports how evenly the throughput spread across them.
// With FIFO granting no worker should starve.
func stressPhase(mgr *banyan.LockManager, gate *lock.PBWMGate) error {
	if shouldSkip("stress") {
		return nil
	}

	fmt.Printf("\nFairness stress phase (%ds, single database)...\n", benchDurationSec)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(benchDurationSec)*time.Second)
	defer cancel()

	ops := make([]atomic.Uint64, benchWorkers)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < benchWorkers; i++ {
		i := i
		g.Go(func() error {
			l := mgr.NewLocker()
			rng := rand.New(rand.NewSource(int64(i) + 1))
			for ctx.Err() == nil {
				ns := fmt.Sprintf("stress.coll-%d", rng.Intn(benchCollections))
				mode := lock.ModeIS
				if rng.Intn(4) == 0 {
					mode = lock.ModeIX
				}
				db, err := lock.NewDBLock(l, gate, "stress", mode, nil)
				if err != nil {
					return err
				}
				coll, err := lock.NewCollectionLock(l, ns, mode, nil)
				if err != nil {
					db.Close()
					return err
				}
				coll.Close()
				db.Close()
				ops[i].Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stress phase failed: %v", err)
	}

	perWorker := make([]float64, benchWorkers)
	var total uint64
	for i := range ops {
		n := ops[i].Load()
		perWorker[i] = float64(n)
		total += n
	}

	stats := lockutil.NewDistributionStats(perWorker)
	fmt.Printf("%-20s%d ops (%.0f ops/sec)\n", "stress",
		total, float64(total)/float64(benchDurationSec))
	fmt.Printf("%-20smin %.0f, max %.0f, mean %.0f, quality %.2f\n", "",
		stats.Min, stats.Max, stats.Mean, stats.DistributionQuality)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result with latency percentiles
	ps := timer.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50 %s\tp99 %s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, timers map[string]gometrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Skipped",
		"Workers", "Databases", "Collections",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		ps := timers[test].Percentiles([]float64{0.5, 0.99})
		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(ps[0]).String(),
			time.Duration(ps[1]).String(),
			skipped,
			strconv.Itoa(benchWorkers),
			strconv.Itoa(benchDatabases),
			strconv.Itoa(benchCollections),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
