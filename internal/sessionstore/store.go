// Package sessionstore keeps a history of the sessions started by the irmareq command, so that
// their status can be followed and their results be retrieved later.
package sessionstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"

	irma "github.com/privacybydesign/irmarequestor"
)

// Record is the stored state of a session.
type Record struct {
	Token   irma.RequestorToken `json:"token"`
	Type    irma.Action         `json:"type"`
	Server  string              `json:"server"`
	Qr      *irma.Qr            `json:"qr,omitempty"`
	Started time.Time           `json:"started"`
	Updated time.Time           `json:"updated"`
	Status  irma.ServerStatus   `json:"status"`
	Result  *irma.SessionResult `json:"result,omitempty"`
}

// Store persists session records.
type Store interface {
	// Add stores a new record, overwriting any record with the same token.
	Add(ctx context.Context, record *Record) error
	// Get returns the record of the session, or ErrUnknownSession.
	Get(ctx context.Context, token irma.RequestorToken) (*Record, error)
	// Update replaces an existing record, or returns ErrUnknownSession.
	Update(ctx context.Context, record *Record) error
	// List returns all records, ordered by start time.
	List(ctx context.Context) ([]*Record, error)
	Close() error
}

var ErrUnknownSession = errors.New("unknown session")

const (
	TypeMemory = "memory"
	TypeBbolt  = "bbolt"
	TypeRedis  = "redis"
)

// Configuration selects and configures a Store.
type Configuration struct {
	// memory, bbolt or redis
	Type string `json:"type" mapstructure:"type"`
	// Database file (bbolt)
	Path string `json:"path,omitempty" mapstructure:"path"`
	// Connection settings (redis)
	RedisSettings *RedisSettings `json:"redis_settings,omitempty" mapstructure:"redis_settings"`

	Logger *logrus.Logger `json:"-" mapstructure:"-"`
}

// RedisSettings configure the connection to Redis.
type RedisSettings struct {
	Addr     string `json:"address,omitempty" mapstructure:"address"`
	Username string `json:"username,omitempty" mapstructure:"username"`
	Password string `json:"password,omitempty" mapstructure:"password"`
	DB       int    `json:"db,omitempty" mapstructure:"db"`
	// Prefix for all keys written to Redis
	KeyPrefix string `json:"key_prefix,omitempty" mapstructure:"key_prefix"`
}

// New returns the Store specified by the configuration.
func New(conf *Configuration) (Store, error) {
	if conf.Logger == nil {
		conf.Logger = irma.Logger
	}
	switch conf.Type {
	case "", TypeMemory:
		return newMemoryStore(), nil
	case TypeBbolt:
		if conf.Path == "" {
			return nil, errors.New("bbolt session store requires a path")
		}
		return newBboltStore(conf.Path, conf.Logger)
	case TypeRedis:
		if conf.RedisSettings == nil || conf.RedisSettings.Addr == "" {
			return nil, errors.New("redis session store requires an address")
		}
		return newRedisStore(conf.RedisSettings, conf.Logger)
	default:
		return nil, errors.Errorf("unknown session store type %q", conf.Type)
	}
}

// Unfinished returns the records of the sessions that have not reached a final status yet.
func Unfinished(ctx context.Context, store Store) ([]*Record, error) {
	records, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	var unfinished []*Record
	for _, r := range records {
		if !r.Status.Finished() {
			unfinished = append(unfinished, r)
		}
	}
	return unfinished, nil
}

// Observe records a status observed for the session. A finished result is stored along with it.
func (r *Record) Observe(status irma.ServerStatus, result *irma.SessionResult) {
	r.Status = status
	r.Updated = time.Now()
	if result != nil {
		r.Result = result
	}
}

func sortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Started.Before(records[j].Started)
	})
}

func marshalRecord(r *Record) ([]byte, error) {
	bts, err := json.Marshal(r)
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to marshal session record", 0)
	}
	return bts, nil
}

func unmarshalRecord(bts []byte) (*Record, error) {
	r := &Record{}
	if err := json.Unmarshal(bts, r); err != nil {
		return nil, errors.WrapPrefix(err, "failed to unmarshal session record", 0)
	}
	return r, nil
}
