package bitarchive

import (
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/allen1211/bitpres/pkg/common"
	"github.com/allen1211/bitpres/pkg/common/utils"
)

const filePrefix = "file/"

type LevelStore struct {
	db   *leveldb.DB
	path string
	wo   *opt.WriteOptions
}

func MakeLevelStore(path string) (*LevelStore, error) {
	var err error
	if err = utils.CheckAndMkdir(path); err != nil {
		return nil, err
	}
	options := opt.Options{
		WriteBuffer: 4096 * 1024,
	}
	lvs := &LevelStore{path: path, wo: &opt.WriteOptions{Sync: true}}
	if lvs.db, err = leveldb.OpenFile(path, &options); err != nil {
		return nil, err
	}
	return lvs, nil
}

func MakeMemLevelStore() (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db, wo: &opt.WriteOptions{Sync: true}}, nil
}

func (lvs *LevelStore) Get(name string) ([]byte, error) {
	val, err := lvs.db.Get([]byte(filePrefix+name), nil)
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("%s: %w", name, common.ErrUnknownFile)
	}
	return val, err
}

func (lvs *LevelStore) Put(name string, data []byte) error {
	return lvs.db.Put([]byte(filePrefix+name), data, lvs.wo)
}

func (lvs *LevelStore) Exists(name string) (bool, error) {
	return lvs.db.Has([]byte(filePrefix+name), nil)
}

func (lvs *LevelStore) Delete(name string) error  {
	return lvs.db.Delete([]byte(filePrefix+name), lvs.wo)
}

func (lvs *LevelStore) List() ([]string, error) {
	iter := lvs.db.NewIterator(util.BytesPrefix([]byte(filePrefix)), nil)
	defer iter.Release()

	var names []string
	for iter.First(); iter.Valid(); iter.Next() {
		names = append(names, strings.TrimPrefix(string(iter.Key()), filePrefix))
	}
	return names, iter.Error()
}

func (lvs *LevelStore) Close() error {
	return lvs.db.Close()
}
