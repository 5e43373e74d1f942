package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps a session's location state in Redis under
// "storefront:<session>:<key>". The zip and the JSON record are written in a
// single MULTI/EXEC so readers never see one without the other. Keys carry
// no expiry: only Clear removes a location.
type RedisStore struct {
	client  *redis.Client
	session string
}

func NewRedisStore(client *redis.Client, session string) *RedisStore {
	return &RedisStore{
		client:  client,
		session: session,
	}
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("storefront:%s:%s", s.session, name)
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	rec, err := prepareRecord(rec)
	if err != nil {
		return err
	}
	p, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if rec.ZipCode != "" {
			pipe.Set(ctx, s.key(KeyZipCode), rec.ZipCode, 0)
		} else {
			pipe.Del(ctx, s.key(KeyZipCode))
		}
		pipe.Set(ctx, s.key(KeyLocation), string(p), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not save location: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (Record, error) {
	val, err := s.client.Get(ctx, s.key(KeyLocation)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("could not load location: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, fmt.Errorf("could not decode stored location: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key(KeyZipCode), s.key(KeyLocation)).Err()
}

func (s *RedisStore) Permission(ctx context.Context) (Permission, error) {
	val, err := s.client.Get(ctx, s.key(KeyPermission)).Result()
	if errors.Is(err, redis.Nil) {
		return PermissionUnset, nil
	}
	if err != nil {
		return PermissionUnset, fmt.Errorf("could not load location permission: %w", err)
	}
	return ParsePermission(val), nil
}

func (s *RedisStore) SetPermission(ctx context.Context, p Permission) error {
	return s.client.Set(ctx, s.key(KeyPermission), string(p), 0).Err()
}

func (s *RedisStore) Prompted(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(KeyHasPrompted)).Result()
	if err != nil {
		return false, fmt.Errorf("could not load prompt flag: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) SetPrompted(ctx context.Context) error {
	return s.client.Set(ctx, s.key(KeyHasPrompted), "true", 0).Err()
}
