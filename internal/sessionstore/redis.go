package sessionstore

import (
	"context"

	"github.com/go-errors/errors"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	irma "github.com/privacybydesign/irmarequestor"
)

const (
	recordKeyPrefix = "irmareq:session:"
	indexKey        = "irmareq:sessions"
)

type redisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *logrus.Logger
}

func newRedisStore(settings *RedisSettings, logger *logrus.Logger) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		Username: settings.Username,
		Password: settings.Password,
		DB:       settings.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapPrefix(err, "failed to connect to Redis", 0)
	}
	logger.WithField("address", settings.Addr).Debug("Connected to Redis")
	return &redisStore{client: client, keyPrefix: settings.KeyPrefix, logger: logger}, nil
}

func (s *redisStore) recordKey(token irma.RequestorToken) string {
	return s.keyPrefix + recordKeyPrefix + string(token)
}

func (s *redisStore) Add(ctx context.Context, record *Record) error {
	bts, err := marshalRecord(record)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(record.Token), bts, 0)
		pipe.SAdd(ctx, s.keyPrefix+indexKey, string(record.Token))
		return nil
	})
	if err != nil {
		return errors.WrapPrefix(err, "failed to store session record in Redis", 0)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, token irma.RequestorToken) (*Record, error) {
	val, err := s.client.Get(ctx, s.recordKey(token)).Bytes()
	if err == redis.Nil {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to load session record from Redis", 0)
	}
	return unmarshalRecord(val)
}

func (s *redisStore) Update(ctx context.Context, record *Record) error {
	bts, err := marshalRecord(record)
	if err != nil {
		return err
	}
	// SET XX only writes keys that already exist
	ok, err := s.client.SetXX(ctx, s.recordKey(record.Token), bts, 0).Result()
	if err == redis.Nil {
		return ErrUnknownSession
	}
	if err != nil {
		return errors.WrapPrefix(err, "failed to store session record in Redis", 0)
	}
	if !ok {
		return ErrUnknownSession
	}
	return nil
}

func (s *redisStore) List(ctx context.Context) ([]*Record, error) {
	tokens, err := s.client.SMembers(ctx, s.keyPrefix+indexKey).Result()
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to list sessions in Redis", 0)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = s.recordKey(irma.RequestorToken(t))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to load session records from Redis", 0)
	}

	list := make([]*Record, 0, len(vals))
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			s.logger.WithField("token", tokens[i]).Warn("Session record missing from Redis")
			continue
		}
		r, err := unmarshalRecord([]byte(str))
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	sortRecords(list)
	return list, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
