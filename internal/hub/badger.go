package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

// List and set values are stored as JSON arrays under their key; Badger
// transactions make the read-modify-write cycles atomic.
const (
	listKeyPrefix = "!list!"
	setKeyPrefix  = "!set!"
)

// BadgerStore is the durable Store backed by an embedded Badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the hub database at path. Badger's own
// logging is silenced; errors still surface from operations.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) CompareAndSet(_ context.Context, key string, old, value []byte) (bool, error) {
	won := false
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if old != nil {
				return nil
			}
		case err != nil:
			return err
		default:
			if old == nil {
				return nil
			}
			current, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !bytes.Equal(current, old) {
				return nil
			}
		}
		won = true
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *BadgerStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		_ = txn.Delete([]byte(listKeyPrefix + key))
		_ = txn.Delete([]byte(setKeyPrefix + key))
		return nil
	})
}

func (s *BadgerStore) ListAppend(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		list, err := readJSONList(txn, listKeyPrefix+key)
		if err != nil {
			return err
		}
		list = append(list, json.RawMessage(append([]byte(nil), value...)))
		return writeJSONList(txn, listKeyPrefix+key, list)
	})
}

func (s *BadgerStore) ListRange(_ context.Context, key string, limit int) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		list, err := readJSONList(txn, listKeyPrefix+key)
		if err != nil {
			return err
		}
		if limit > 0 && len(list) > limit {
			list = list[len(list)-limit:]
		}
		out = make([][]byte, len(list))
		for i, v := range list {
			out[i] = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) ListTrim(_ context.Context, key string, max int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		list, err := readJSONList(txn, listKeyPrefix+key)
		if err != nil {
			return err
		}
		if max >= 0 && len(list) > max {
			list = list[len(list)-max:]
		}
		return writeJSONList(txn, listKeyPrefix+key, list)
	})
}

func (s *BadgerStore) SetAdd(_ context.Context, key, member string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		members, err := readJSONSet(txn, setKeyPrefix+key)
		if err != nil {
			return err
		}
		members[member] = struct{}{}
		return writeJSONSet(txn, setKeyPrefix+key, members)
	})
}

func (s *BadgerStore) SetRemove(_ context.Context, key, member string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		members, err := readJSONSet(txn, setKeyPrefix+key)
		if err != nil {
			return err
		}
		delete(members, member)
		return writeJSONSet(txn, setKeyPrefix+key, members)
	})
}

func (s *BadgerStore) SetMembers(_ context.Context, key string) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		members, err := readJSONSet(txn, setKeyPrefix+key)
		if err != nil {
			return err
		}
		out = make([]string, 0, len(members))
		for m := range members {
			out = append(out, m)
		}
		sort.Strings(out)
		return nil
	})
	return out, err
}

func (s *BadgerStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().Key())
			if strings.HasPrefix(k, listKeyPrefix) || strings.HasPrefix(k, setKeyPrefix) {
				continue
			}
			keys = append(keys, k)
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func readJSONList(txn *badger.Txn, key string) ([]json.RawMessage, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func writeJSONList(txn *badger.Txn, key string, list []json.RawMessage) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), raw)
}

func readJSONSet(txn *badger.Txn, key string) (map[string]struct{}, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return make(map[string]struct{}), nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set, nil
}

func writeJSONSet(txn *badger.Txn, key string, members map[string]struct{}) error {
	list := make([]string, 0, len(members))
	for m := range members {
		list = append(list, m)
	}
	sort.Strings(list)
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), raw)
}

var _ Store = (*BadgerStore)(nil)
