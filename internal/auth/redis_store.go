// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps token records in Redis. Records sharing a token key live
// in one hash keyed by digest; a reverse index maps digests to token keys.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "authtoken"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyHash(tokenKey string) string { return s.prefix + ":key:" + tokenKey }
func (s *RedisStore) digestIndex(digest string) string { return s.prefix + ":digest:" + digest }

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.keyHash(rec.TokenKey), rec.Digest, data)
		p.Set(ctx, s.digestIndex(rec.Digest), rec.TokenKey, 0)
		return nil
	})
	return err
}

func (s *RedisStore) ByTokenKey(ctx context.Context, tokenKey string) ([]Record, error) {
	vals, err := s.client.HVals(ctx, s.keyHash(tokenKey)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(vals))
	for _, v := range vals {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode token record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, digest string) error {
	tokenKey, err := s.client.Get(ctx, s.digestIndex(digest)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, s.keyHash(tokenKey), digest)
		p.Del(ctx, s.digestIndex(digest))
		return nil
	})
	return err
}
