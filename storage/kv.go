package storage

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KVStore layers an RLP-encoded typed surface over a raw Database so
// higher-level components can persist structured records without knowing the
// backend.
type KVStore struct {
	db Database
}

// NewKVStore wraps the provided database.
func NewKVStore(db Database) *KVStore {
	return &KVStore{db: db}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("kv: store not configured")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("kv: store not configured")
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := s.db.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list
// stored under the supplied key. Duplicate values are ignored to keep indexes
// deterministic.
func (s *KVStore) KVAppend(key []byte, value []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("kv: store not configured")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := s.db.Get(key)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

// KVGetList retrieves an RLP-encoded byte slice list stored under the
// provided key. When no value is present the destination is initialised with
// an empty slice to avoid nil surprises for callers.
func (s *KVStore) KVGetList(key []byte, out *[][]byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("kv: store not configured")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if out == nil {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	data, err := s.db.Get(key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*out = make([][]byte, 0)
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
