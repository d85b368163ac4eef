package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStore keeps each document under "<prefix>:<id>" and announces every
// write on the "<prefix>:<id>:changes" channel. Transactions use WATCH/MULTI.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration // 0なら期限なし
	logger *zap.Logger
}

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *RedisStore) key(id string) string     { return s.prefix + ":" + id }
func (s *RedisStore) channel(id string) string { return s.prefix + ":" + id + ":changes" }

func (s *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	doc, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *RedisStore) Put(ctx context.Context, id string, doc []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueWrite(ctx, pipe, id, doc)
		return nil
	})
	return err
}

func (s *RedisStore) Update(ctx context.Context, id string, partial map[string]any) error {
	return s.Transaction(ctx, id, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		return mergeDocument(current, partial)
	})
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueWrite(ctx, pipe, id, nil)
		return nil
	})
	return err
}

func (s *RedisStore) Transaction(ctx context.Context, id string, fn TxFunc) error {
	key := s.key(id)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil && current == nil {
			return nil
		}

		// WATCH 後にキーが変更されていれば EXEC は失敗する
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueWrite(ctx, pipe, id, next)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// queueWrite stores or deletes the document and publishes a change hint in
// the same MULTI block.
func (s *RedisStore) queueWrite(ctx context.Context, pipe redis.Pipeliner, id string, doc []byte) {
	if doc == nil {
		pipe.Del(ctx, s.key(id))
	} else {
		pipe.Set(ctx, s.key(id), doc, s.ttl)
	}
	pipe.Publish(ctx, s.channel(id), "changed")
}

// Subscribe treats each published message as a hint and re-reads the
// document, so the last delivery always reflects the latest committed version.
func (s *RedisStore) Subscribe(ctx context.Context, id string, onChange ChangeFunc) (func(), error) {
	pubsub := s.rdb.Subscribe(ctx, s.channel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	ctx, stop := context.WithCancel(ctx)
	sub := newSubscriber(onChange)
	go sub.run(ctx)

	messages := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		defer sub.stop()
		s.refresh(ctx, id, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				s.refresh(ctx, id, sub)
			}
		}
	}()
	return stop, nil
}

func (s *RedisStore) refresh(ctx context.Context, id string, sub *subscriber) {
	doc, err := s.Get(ctx, id)
	switch {
	case err == nil:
		sub.push(doc)
	case errors.Is(err, ErrNotFound):
		sub.push(nil)
	case ctx.Err() != nil:
	default:
		s.logger.Error("Failed to refresh subscribed document", zap.String("id", id), zap.Error(err))
	}
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	prefix := s.prefix + ":"
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if strings.HasSuffix(k, ":changes") {
			continue
		}
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	return ids, iter.Err()
}
