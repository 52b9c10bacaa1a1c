package sessionstore

import (
	"context"
	"time"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	irma "github.com/privacybydesign/irmarequestor"
)

const sessionBucket = "sessions"

type bboltStore struct {
	db     *bbolt.DB
	logger *logrus.Logger
}

func newBboltStore(path string, logger *logrus.Logger) (*bboltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed to open session database", 0)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.WithField("path", path).Debug("Opened session database")
	return &bboltStore{db: db, logger: logger}, nil
}

func (s *bboltStore) txStore(tx *bbolt.Tx, record *Record) error {
	bts, err := marshalRecord(record)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(sessionBucket)).Put([]byte(record.Token), bts)
}

func (s *bboltStore) txLoad(tx *bbolt.Tx, token irma.RequestorToken) (*Record, error) {
	bts := tx.Bucket([]byte(sessionBucket)).Get([]byte(token))
	if bts == nil {
		return nil, ErrUnknownSession
	}
	return unmarshalRecord(bts)
}

func (s *bboltStore) Add(_ context.Context, record *Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.txStore(tx, record)
	})
}

func (s *bboltStore) Get(_ context.Context, token irma.RequestorToken) (*Record, error) {
	var record *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		record, err = s.txLoad(tx, token)
		return err
	})
	return record, err
}

func (s *bboltStore) Update(_ context.Context, record *Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := s.txLoad(tx, record.Token); err != nil {
			return err
		}
		return s.txStore(tx, record)
	})
}

func (s *bboltStore) List(context.Context) ([]*Record, error) {
	var list []*Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).ForEach(func(_, v []byte) error {
			r, err := unmarshalRecord(v)
			if err != nil {
				return err
			}
			list = append(list, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(list)
	return list, nil
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}
