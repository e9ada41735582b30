package versioned

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/allen1211/bitpres/pkg/common/utils"
)

// LevelStore keeps records in leveldb. The read-compare-write of a
// conditional update runs under mu; no I/O other than leveldb happens there.
type LevelStore struct {
	mu   sync.Mutex
	db   *leveldb.DB
	path string
	wo   *opt.WriteOptions
}

func MakeLevelStore(path string) (*LevelStore, error) {
	if err := utils.CheckAndMkdir(path); err != nil {
		return nil, err
	}
	options := opt.Options{
		WriteBuffer: 4096 * 1024,
	}
	db, err := leveldb.OpenFile(path, &options)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db, path: path, wo: &opt.WriteOptions{Sync: true}}, nil
}

// MakeMemLevelStore opens a leveldb backed by memory only.
func MakeMemLevelStore() (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db, wo: &opt.WriteOptions{Sync: true}}, nil
}

func (lvs *LevelStore) get(key string) (Record, error) {
	val, err := lvs.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	} else if err != nil {
		return Record{}, err
	}
	return decodeRecord(key, val)
}

func (lvs *LevelStore) Get(key string) (Record, error) {
	return lvs.get(key)
}

func (lvs *LevelStore) Create(key string, value []byte) (Record, error) {
	lvs.mu.Lock()
	defer lvs.mu.Unlock()

	if ok, err := lvs.db.Has([]byte(key), nil); err != nil {
		return Record{}, err
	} else if ok {
		return Record{}, fmt.Errorf("%s: %w", key, ErrExists)
	}
	if err := lvs.db.Put([]byte(key), encodeRecord(firstEdition, value), lvs.wo); err != nil {
		return Record{}, err
	}
	return Record{Key: key, Edition: firstEdition, Value: value}, nil
}

func (lvs *LevelStore) Update(key string, edition int64, value []byte) (Record, error) {
	lvs.mu.Lock()
	defer lvs.mu.Unlock()

	curr, err := lvs.get(key)
	if err != nil {
		return Record{}, err
	}
	if curr.Edition != edition {
		return Record{}, fmt.Errorf("%s at edition %d, update based on %d: %w", key, curr.Edition, edition, ErrStaleEdition)
	}
	next := Record{Key: key, Edition: edition + 1, Value: value}
	if err := lvs.db.Put([]byte(key), encodeRecord(next.Edition, value), lvs.wo); err != nil {
		return Record{}, err
	}
	return next, nil
}

func (lvs *LevelStore) Scan(prefix string, fn func(Record) bool) error {
	snapshot, err := lvs.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snapshot.Release()

	iter := snapshot.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(string(iter.Key()), iter.Value())
		if err != nil {
			return err
		}
		if !fn(rec) {
			break
		}
	}
	return iter.Error()
}

func (lvs *LevelStore) Close() error {
	return lvs.db.Close()
}
