package lock

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/mgLock/lib/lock/util"
)

// --------------------------------------------------------------------------
// Resource Identifiers
// --------------------------------------------------------------------------

// ResourceType is the granularity level of a lockable resource.
type ResourceType uint8

const (
	ResourceTypeGlobal     ResourceType = iota + 1 // the whole engine
	ResourceTypeDatabase                           // one database
	ResourceTypeCollection                         // one collection namespace
	ResourceTypeMutex                              // caller-defined resource
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeGlobal:
		return "Global"
	case ResourceTypeDatabase:
		return "Database"
	case ResourceTypeCollection:
		return "Collection"
	case ResourceTypeMutex:
		return "Mutex"
	default:
		return "Invalid"
	}
}

// ResourceId identifies a lockable entity. It packs the resource type
// into the top bits and a hash of the resource name into the remaining
// bits, so that the same database name always maps to the same id for
// the lifetime of the process, and ids order coarse-to-fine by type.
type ResourceId uint64

const (
	resourceTypeBits  = 4
	resourceTypeShift = 64 - resourceTypeBits
	resourceHashMask  = (uint64(1) << resourceTypeShift) - 1
)

// resourceSeed decouples resource hashes between process runs. It is
// fixed at startup so equality and ordering stay stable afterwards.
var resourceSeed = util.GenerateSeed()

// ResourceIdGlobal is the singleton id for the whole engine.
var ResourceIdGlobal = ResourceId(uint64(ResourceTypeGlobal) << resourceTypeShift)

// NewResourceId creates the id for a named resource of the given type.
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func NewResourceId(t ResourceType, name string) ResourceId {
	return ResourceId(uint64(t)<<resourceTypeShift | util.HashString(name, resourceSeed)&resourceHashMask)
}

// NewDatabaseResourceId creates the id for a database name.
func NewDatabaseResourceId(db string) ResourceId {
	return NewResourceId(ResourceTypeDatabase, db)
}

// NewCollectionResourceId creates the id for a full collection namespace
// of the form "db.collection".
func NewCollectionResourceId(ns string) ResourceId {
	return NewResourceId(ResourceTypeCollection, ns)
}

// Type returns the granularity level encoded in the id.
func (r ResourceId) Type() ResourceType {
	return ResourceType(uint64(r) >> resourceTypeShift)
}

func (r ResourceId) String() string {
	return fmt.Sprintf("{%s:%x}", r.Type(), uint64(r)&resourceHashMask)
}

// NsToDatabase returns the database part of a "db.collection" namespace.
// A namespace without a dot is treated as a bare database name.
func NsToDatabase(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[:i]
	}
	return ns
}
