package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps documents in Redis.
//
// Layout, with prefix P:
//   - P:doc:<collection>:<id> holds the JSON encoded Document.
//   - P:ids:<collection> is a sorted set of ids, all scored 0 so they sort lexically.
//   - P:gone:<collection>:<id> holds the last version of a deleted document.
//   - P:chg:<collection> is the pub/sub channel announcing commits.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the server at redisURL (redis://host:port/db).
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient creates a store from an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tallerdb"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) docKey(k docKey) string {
	return s.prefix + ":doc:" + k.collection + ":" + k.id
}

func (s *RedisStore) goneKey(k docKey) string {
	return s.prefix + ":gone:" + k.collection + ":" + k.id
}

func (s *RedisStore) idsKey(collection string) string {
	return s.prefix + ":ids:" + collection
}

func (s *RedisStore) chgKey(collection string) string {
	return s.prefix + ":chg:" + collection
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	k, err := newKey(collection, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, k)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return doc, nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, collection string) ([]*Document, error) {
	if collection == "" {
		return nil, errCollRequired
	}
	ids, err := s.client.ZRange(ctx, s.idsKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []*Document{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(docKey{collection: collection, id: id})
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]*Document, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Removed between ZRANGE and MGET.
			continue
		}
		doc, err := decodeDoc(str)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, collection, id string, fields map[string]any, opts ...SetOption) error {
	w, err := newSetWrite(collection, id, fields, opts)
	return s.commitRetry(ctx, w, err)
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, collection, id string, updates ...FieldUpdate) error {
	w, err := newUpdateWrite(collection, id, updates)
	return s.commitRetry(ctx, w, err)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	k, err := newKey(collection, id)
	return s.commitRetry(ctx, write{key: k, op: opDelete}, err)
}

// commitRetry commits a single write. Blind writes still need WATCH because
// merges and updates are computed from the current value.
func (s *RedisStore) commitRetry(ctx context.Context, w write, err error) error {
	if err != nil {
		return err
	}
	for range MaxAttempts {
		err = s.commit(ctx, nil, []write{w})
		if !errors.Is(err, errConflict) {
			return err
		}
	}
	return ErrConflict
}

// RunTransaction implements Store.
func (s *RedisStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runTransaction(ctx, s, fn)
}

// Watch implements Store.
func (s *RedisStore) Watch(ctx context.Context, collection string) (<-chan []*Document, error) {
	if collection == "" {
		return nil, errCollRequired
	}
	sub := s.client.Subscribe(ctx, s.chgKey(collection))
	// Wait for the subscription to be active so no commit is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}
	first, err := s.List(ctx, collection)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	ch := make(chan []*Document, 1)
	ch <- first
	go func() {
		defer close(ch)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				snap, err := s.List(ctx, collection)
				if err != nil {
					if ctx.Err() == nil {
						slog.WarnContext(ctx, "Failed to refresh watched collection", "collection", collection, "err", err)
					}
					continue
				}
				select {
				case ch <- snap:
				default:
					select {
					case <-ch:
					default:
					}
					ch <- snap
				}
			}
		}
	}()
	return ch, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context, k docKey) (*Document, error) {
	return s.loadWith(ctx, s.client, k)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) loadWith(ctx context.Context, c getter, k docKey) (*Document, error) {
	str, err := c.Get(ctx, s.docKey(k)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", k, err)
	}
	doc, err := decodeDoc(str)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return doc, nil
}

func (s *RedisStore) commit(ctx context.Context, reads map[docKey]int64, writes []write) error {
	keys := make([]string, 0, len(reads)+len(writes))
	for k := range reads {
		keys = append(keys, s.docKey(k))
	}
	for _, w := range writes {
		keys = append(keys, s.docKey(w.key), s.goneKey(w.key))
	}
	txf := func(tx *redis.Tx) error {
		for k, v := range reads {
			doc, err := s.loadWith(ctx, tx, k)
			if err != nil {
				return err
			}
			var cur int64
			if doc != nil {
				cur = doc.Version
			}
			if cur != v {
				return errConflict
			}
		}
		now := time.Now().UTC()
		pending := map[docKey]*Document{}
		base := map[docKey]int64{}
		var order []docKey
		for _, w := range writes {
			cur, seen := pending[w.key]
			if !seen {
				var err error
				if cur, err = s.loadWith(ctx, tx, w.key); err != nil {
					return err
				}
				if cur != nil {
					base[w.key] = cur.Version
				} else if base[w.key], err = s.goneVersion(ctx, tx, w.key); err != nil {
					return err
				}
				order = append(order, w.key)
			}
			next, err := apply(cur, base[w.key], w, now)
			if err != nil {
				return err
			}
			pending[w.key] = next
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			touched := map[string]struct{}{}
			for _, k := range order {
				touched[k.collection] = struct{}{}
				next := pending[k]
				if next == nil {
					pipe.Del(ctx, s.docKey(k))
					pipe.ZRem(ctx, s.idsKey(k.collection), k.id)
					if base[k] > 0 {
						pipe.Set(ctx, s.goneKey(k), base[k], 0)
					}
					continue
				}
				data, err := json.Marshal(next)
				if err != nil {
					return err
				}
				pipe.Set(ctx, s.docKey(k), data, 0)
				pipe.Del(ctx, s.goneKey(k))
				pipe.ZAdd(ctx, s.idsKey(k.collection), redis.Z{Score: 0, Member: k.id})
			}
			for coll := range touched {
				pipe.Publish(ctx, s.chgKey(coll), "1")
			}
			return nil
		})
		return err
	}
	err := s.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return errConflict
	}
	return err
}

// goneVersion returns the last version of a deleted document, 0 if none.
func (s *RedisStore) goneVersion(ctx context.Context, c getter, k docKey) (int64, error) {
	v, err := c.Get(ctx, s.goneKey(k)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", k, err)
	}
	return v, nil
}

func decodeDoc(s string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
