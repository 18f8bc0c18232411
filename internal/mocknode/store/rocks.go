package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tecbot/gorocksdb"
)

var ErrNotFound = errors.New("block not found")

// RocksStore keeps the simulated chain: one key per canonical block plus a
// head marker, written atomically so /height and /query never disagree.
type RocksStore struct {
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions
}

func Open(path string) (*RocksStore, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		return nil, err
	}

	return &RocksStore{
		db: db,
		ro: gorocksdb.NewDefaultReadOptions(),
		wo: gorocksdb.NewDefaultWriteOptions(),
	}, nil
}

func (s *RocksStore) Close() {
	if s.ro != nil {
		s.ro.Destroy()
	}
	if s.wo != nil {
		s.wo.Destroy()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// Head returns the highest appended block number; 0 means an empty chain.
func (s *RocksStore) Head() (int64, error) {
	val, err := s.db.Get(s.ro, keyHead())
	if err != nil {
		return 0, err
	}
	defer val.Free()

	if !val.Exists() {
		return 0, nil
	}
	return strconv.ParseInt(string(val.Data()), 10, 64)
}

func (s *RocksStore) GetBlockRaw(n int64) ([]byte, error) {
	val, err := s.db.Get(s.ro, keyBlock(n))
	if err != nil {
		return nil, err
	}
	defer val.Free()

	if !val.Exists() {
		return nil, ErrNotFound
	}
	// val.Data() is RocksDB-owned memory, invalid after Free.
	return append([]byte(nil), val.Data()...), nil
}

func (s *RocksStore) AppendBlock(blockNum int64, blockBytes []byte) error {
	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()

	wb.Put(keyBlock(blockNum), blockBytes)
	wb.Put(keyHead(), []byte(strconv.FormatInt(blockNum, 10)))

	return s.db.Write(s.wo, wb)
}

func keyHead() []byte { return []byte("meta:head") }

func keyBlock(n int64) []byte {
	// fixed width keeps lexicographic order aligned with block order
	return []byte(fmt.Sprintf("block:%020d", n))
}
