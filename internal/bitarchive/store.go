package bitarchive

import (
	"fmt"
)

// FileStore holds the stored content of one node. For a checksum replica
// the content is the checksum itself.
type FileStore interface {
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	Exists(name string) (bool, error)
	Delete(name string) error
	List() ([]string, error)
	Close() error
}

const (
	StoreLevelDB = "leveldb"
	StoreAFS     = "afs"
	StoreMemory  = "memory"
)

func OpenStore(driver, path string) (FileStore, error) {
	switch driver {
	case StoreLevelDB, "":
		return MakeLevelStore(path)
	case StoreAFS:
		return MakeAFSStore(path)
	case StoreMemory:
		return MakeMemLevelStore()
	}
	return nil, fmt.Errorf("unsupported file store driver %q", driver)
}
