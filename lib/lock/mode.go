package lock

// --------------------------------------------------------------------------
// Lock Modes
// --------------------------------------------------------------------------

// LockMode is one of the modes of the multi-granularity locking lattice.
//
// Compatibility between two modes held by different lockers on the same
// resource is fixed:
//
//	held \ requested |  IS  |  IX  |  S  |  X
//	-----------------+------+------+-----+-----
//	 IS              |  ok  |  ok  |  ok |  -
//	 IX              |  ok  |  ok  |  -  |  -
//	 S               |  ok  |  -   |  ok |  -
//	 X               |  -   |  -   |  -  |  -
//
// Every mode is compatible with itself except X, which is exclusive at
// its granularity. IS is the weakest mode, X the strongest.
type LockMode uint8

const (
	ModeNone LockMode = iota // no lock held
	ModeIS                   // intent shared
	ModeIX                   // intent exclusive
	ModeS                    // shared
	ModeX                    // exclusive
)

// bit returns the bitmask position for a mode, used by the lattice tables.
func bit(m LockMode) uint8 {
	return 1 << m
}

// conflictsTable[m] is the bitmask of modes that conflict with m.
// ModeNone conflicts with nothing.
var conflictsTable = [...]uint8{
	ModeNone: 0,
	ModeIS:   bit(ModeX),
	ModeIX:   bit(ModeS) | bit(ModeX),
	ModeS:    bit(ModeIX) | bit(ModeX),
	ModeX:    bit(ModeIS) | bit(ModeIX) | bit(ModeS) | bit(ModeX),
}

// coversTable[m] is the bitmask of modes whose grants are implied by
// holding m: a locker that holds m re-acquiring at a covered mode must
// not block and only increments its recursion count.
var coversTable = [...]uint8{
	ModeNone: bit(ModeNone),
	ModeIS:   bit(ModeNone) | bit(ModeIS),
	ModeIX:   bit(ModeNone) | bit(ModeIS) | bit(ModeIX),
	ModeS:    bit(ModeNone) | bit(ModeIS) | bit(ModeS),
	ModeX:    bit(ModeNone) | bit(ModeIS) | bit(ModeIX) | bit(ModeS) | bit(ModeX),
}

// Compatible reports whether a lock in mode m and a lock in mode other can
// be held on the same resource by different lockers at the same time.
// The relation is symmetric.
func (m LockMode) Compatible(other LockMode) bool {
	return conflictsTable[m]&bit(other) == 0
}

// Covers reports whether holding m implies the grant of other, i.e. a
// locker already holding m may re-enter at other without blocking.
func (m LockMode) Covers(other LockMode) bool {
	return coversTable[m]&bit(other) != 0
}

// IsIntent reports whether m is one of the intention modes (IS or IX).
func (m LockMode) IsIntent() bool {
	return m == ModeIS || m == ModeIX
}

// IsShared reports whether m permits concurrent readers (IS or S).
func (m LockMode) IsShared() bool {
	return m == ModeIS || m == ModeS
}

// IntentOf returns the mode that must be held on the parent resource
// before m may be taken on a child resource: IS for the shared modes,
// IX for the exclusive ones. Taking S or X below only requires an
// intent lock above because sibling resources stay independently
// lockable.
func (m LockMode) IntentOf() LockMode {
	switch m {
	case ModeIS, ModeS:
		return ModeIS
	case ModeIX, ModeX:
		return ModeIX
	default:
		return ModeNone
	}
}

func (m LockMode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModeIS:
		return "IS"
	case ModeIX:
		return "IX"
	case ModeS:
		return "S"
	case ModeX:
		return "X"
	default:
		return "INVALID"
	}
}
