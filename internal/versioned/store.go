package versioned

import (
	"errors"
	"fmt"

	"github.com/Allen1211/msgp/msgp"

	"github.com/allen1211/bitpres/pkg/common"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

// ErrStaleEdition is returned by Update when the stored edition moved on.
var ErrStaleEdition = common.ErrStaleEdition

// Record is a value guarded by an edition counter. Every successful write
// bumps the edition by one.
type Record struct {
	Key     string
	Edition int64
	Value   []byte
}

// Store is a durable key/value store with compare-and-swap on editions.
// Successful writes are durable when the call returns.
type Store interface {
	Get(key string) (Record, error)
	Create(key string, value []byte) (Record, error)
	Update(key string, edition int64, value []byte) (Record, error)
	Scan(prefix string, fn func(Record) bool) error
	Close() error
}

const firstEdition = 1

func encodeRecord(edition int64, value []byte) []byte {
	b := msgp.AppendInt64(nil, edition)
	return msgp.AppendBytes(b, value)
}

func decodeRecord(key string, data []byte) (Record, error) {
	edition, rest, err := msgp.ReadInt64Bytes(data)
	if err != nil {
		return Record{}, fmt.Errorf("decode edition of %s: %v", key, err)
	}
	value, _, err := msgp.ReadBytesBytes(rest, nil)
	if err != nil {
		return Record{}, fmt.Errorf("decode value of %s: %v", key, err)
	}
	return Record{Key: key, Edition: edition, Value: value}, nil
}

// Open opens a store by driver name: "leveldb" takes a directory, "sqlite"
// takes a data source name, "memory" ignores path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "leveldb", "":
		return MakeLevelStore(path)
	case "sqlite":
		return OpenSQLStore(path)
	case "memory":
		return MakeMemLevelStore()
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}
