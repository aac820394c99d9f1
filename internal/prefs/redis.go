package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const keyPrefs = "goban:prefs"

// RedisStore keeps the top level of the preferences in one hash; each field
// holds the JSON encoding of its value.
type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Load(ctx context.Context) (Dict, error) {
	fields, err := s.rdb.HGetAll(ctx, keyPrefs).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load preferences: %w", err)
	}
	d := make(Dict, len(fields))
	for k, raw := range fields {
		v, err := decodeField(k, raw)
		if err != nil {
			return nil, err
		}
		d[k] = v
	}
	return d, nil
}

func (s *RedisStore) Replace(ctx context.Context, d Dict) error {
	values := make(map[string]any, len(d))
	for k, v := range d {
		raw, err := json.Marshal(normalizeForJSON(v))
		if err != nil {
			return fmt.Errorf("encode preference %s: %w", k, err)
		}
		values[k] = string(raw)
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keyPrefs)
		if len(values) > 0 {
			p.HSet(ctx, keyPrefs, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace preferences: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := s.rdb.HGet(ctx, keyPrefs, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get preference %s: %w", key, err)
	}
	v, err := decodeField(key, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(normalizeForJSON(value))
	if err != nil {
		return fmt.Errorf("encode preference %s: %w", key, err)
	}
	if err := s.rdb.HSet(ctx, keyPrefs, key, string(raw)).Err(); err != nil {
		return fmt.Errorf("redis set preference %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.rdb.HDel(ctx, keyPrefs, key).Err(); err != nil {
		return fmt.Errorf("redis remove preference %s: %w", key, err)
	}
	return nil
}

// decodeField turns whole numbers into int so values read back from redis
// coerce like values read from YAML.
func decodeField(key, raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", ErrMalformed, key, err)
	}
	return fromJSONNumbers(v), nil
}

func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSONNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromJSONNumbers(e)
		}
		return t
	}
	return v
}

// normalizeForJSON turns Dict values into plain maps so encoding/json sees a
// uniform tree.
func normalizeForJSON(v any) any {
	if d, ok := AsDict(v); ok {
		out := make(map[string]any, len(d))
		for k, e := range d {
			out[k] = normalizeForJSON(e)
		}
		return out
	}
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeForJSON(e)
		}
		return out
	case []Dict:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeForJSON(e)
		}
		return out
	}
	return v
}
