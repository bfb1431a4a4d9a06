package addressbook

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/lastcanal/libbitcoin-network/p2perr"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore persists the address book in a goleveldb database,
// grounded on the teacher's use of its db/database abstraction as the
// addressmanager's backing store — here used directly, since the
// network core has no separate consensus database to share it with.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if absent) a leveldb database at
// path for use as an address book backing store.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, p2perr.Wrap(err, p2perr.FileSystem, "open address book database")
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

type storedAddress struct {
	Host      string `json:"host"`
	Port      uint16 `json:"port"`
	Services  uint64 `json:"services"`
	Timestamp int64  `json:"timestamp"`
}

// Load implements Store.
func (s *LevelDBStore) Load() ([]Address, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []Address
	for iter.Next() {
		var sa storedAddress
		if err := json.Unmarshal(iter.Value(), &sa); err != nil {
			return nil, p2perr.Wrap(err, p2perr.FileSystem, "decode stored address")
		}
		out = append(out, fromStored(sa))
	}
	if err := iter.Error(); err != nil {
		return nil, p2perr.Wrap(err, p2perr.FileSystem, "iterate address book database")
	}
	return out, nil
}

// Save implements Store. It replaces the database's contents with
// addresses in a single batch.
func (s *LevelDBStore) Save(addresses []Address) error {
	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return p2perr.Wrap(err, p2perr.FileSystem, "clear address book database")
	}

	for i, a := range addresses {
		value, err := json.Marshal(toStored(a))
		if err != nil {
			return p2perr.Wrap(err, p2perr.FileSystem, "encode stored address")
		}
		batch.Put(indexKey(i), value)
	}

	if err := s.db.Write(batch, nil); err != nil {
		return p2perr.Wrap(err, p2perr.FileSystem, "write address book database")
	}
	return nil
}

func indexKey(i int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i))
	return buf
}

func toStored(a Address) storedAddress {
	return storedAddress{Host: a.Host, Port: a.Port, Services: a.Services, Timestamp: a.Timestamp.Unix()}
}

func fromStored(sa storedAddress) Address {
	return Address{Host: sa.Host, Port: sa.Port, Services: sa.Services, Timestamp: time.Unix(sa.Timestamp, 0)}
}
