package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// OpenBolt opens (or creates) the bbolt file backing BoltStore sessions.
func OpenBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open location db %s: %w", path, err)
	}
	return db, nil
}

// BoltStore persists a session's location state in its own bbolt bucket.
// Every mutation is a single Update transaction.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

func NewBoltStore(db *bolt.DB, session string) *BoltStore {
	return &BoltStore{db: db, bucket: []byte("session:" + session)}
}

func (s *BoltStore) put(pairs map[string][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		for k, v := range pairs {
			if v == nil {
				if err := b.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) Save(ctx context.Context, rec Record) error {
	rec, err := prepareRecord(rec)
	if err != nil {
		return err
	}
	p, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var zip []byte
	if rec.ZipCode != "" {
		zip = []byte(rec.ZipCode)
	}
	if err := s.put(map[string][]byte{KeyZipCode: zip, KeyLocation: p}); err != nil {
		return fmt.Errorf("could not save location: %w", err)
	}
	return nil
}

func (s *BoltStore) Load(ctx context.Context) (Record, error) {
	v, err := s.get(KeyLocation)
	if err != nil {
		return Record{}, fmt.Errorf("could not load location: %w", err)
	}
	if v == nil {
		return Record{}, nil
	}
	var rec Record
	if err := json.Unmarshal(v, &rec); err != nil {
		return Record{}, fmt.Errorf("could not decode stored location: %w", err)
	}
	return rec, nil
}

func (s *BoltStore) Clear(ctx context.Context) error {
	return s.put(map[string][]byte{KeyZipCode: nil, KeyLocation: nil})
}

func (s *BoltStore) Permission(ctx context.Context) (Permission, error) {
	v, err := s.get(KeyPermission)
	if err != nil {
		return PermissionUnset, fmt.Errorf("could not load location permission: %w", err)
	}
	return ParsePermission(string(v)), nil
}

func (s *BoltStore) SetPermission(ctx context.Context, p Permission) error {
	return s.put(map[string][]byte{KeyPermission: []byte(p)})
}

func (s *BoltStore) Prompted(ctx context.Context) (bool, error) {
	v, err := s.get(KeyHasPrompted)
	if err != nil {
		return false, fmt.Errorf("could not load prompt flag: %w", err)
	}
	return string(v) == "true", nil
}

func (s *BoltStore) SetPrompted(ctx context.Context) error {
	return s.put(map[string][]byte{KeyHasPrompted: []byte("true")})
}
