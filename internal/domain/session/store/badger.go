// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/webpdtool/internal/domain/plan"
	"github.com/ManuGH/webpdtool/internal/domain/session/model"
	"github.com/ManuGH/webpdtool/internal/domain/session/ports"
)

// BadgerStore is the embedded key-value backend. Key layout:
//
//	session/<session_id>          -> model.Session
//	result/<session_id>/<item_no> -> model.Result (item_no zero-padded)
//	sfclog/<seq>                  -> model.SFCLog
//	plan/<station_id>             -> []plan.Point
type BadgerStore struct {
	db     *badger.DB
	logSeq atomic.Int64
}

// OpenBadger opens the store in dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	s := &BadgerStore{db: db}
	if err := s.restoreLogSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BadgerStore) restoreLogSeq() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("sfclog/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		var max int64
		for it.Rewind(); it.Valid(); it.Next() {
			var seq int64
			if _, err := fmt.Sscanf(string(it.Item().Key()), "sfclog/%d", &seq); err == nil && seq > max {
				max = seq
			}
		}
		s.logSeq.Store(max)
		return nil
	})
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func sessionKey(id string) []byte { return []byte("session/" + id) }

func resultKey(sessionID string, itemNo int) []byte {
	return fmt.Appendf(nil, "result/%s/%08d", sessionID, itemNo)
}

func planKey(stationID string) []byte { return []byte("plan/" + stationID) }

func (s *BadgerStore) put(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}

func (s *BadgerStore) get(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ports.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *BadgerStore) CreateSession(ctx context.Context, sess *model.Session) error {
	var existing model.Session
	if err := s.get(sessionKey(sess.ID), &existing); err == nil {
		return fmt.Errorf("store: session %s already exists", sess.ID)
	}
	return s.put(sessionKey(sess.ID), sess)
}

func (s *BadgerStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := s.get(sessionKey(id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BadgerStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	var existing model.Session
	if err := s.get(sessionKey(sess.ID), &existing); err != nil {
		return err
	}
	return s.put(sessionKey(sess.ID), sess)
}

func (s *BadgerStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	var out []model.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("session/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var sess model.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			}); err != nil {
				return err
			}
			out = append(out, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *BadgerStore) SaveResult(ctx context.Context, r *model.Result) error {
	return s.put(resultKey(r.SessionID, r.ItemNo), r)
}

func (s *BadgerStore) ListResults(ctx context.Context, sessionID string) ([]model.Result, error) {
	var out []model.Result
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = fmt.Appendf(nil, "result/%s/", sessionID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var r model.Result
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) SaveSFCLog(ctx context.Context, l *model.SFCLog) error {
	l.ID = s.logSeq.Add(1)
	return s.put(fmt.Appendf(nil, "sfclog/%012d", l.ID), l)
}

func (s *BadgerStore) LoadPlan(ctx context.Context, stationID string) ([]plan.Point, error) {
	var points []plan.Point
	if err := s.get(planKey(stationID), &points); err != nil {
		return nil, err
	}
	plan.SortExecutionOrder(points)
	return points, nil
}

func (s *BadgerStore) SavePlan(ctx context.Context, stationID string, points []plan.Point) error {
	// An empty upload removes the station, matching the SQL backend where
	// deleting all rows makes the plan not found.
	if len(points) == 0 {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(planKey(stationID))
		})
	}
	return s.put(planKey(stationID), points)
}

func (s *BadgerStore) Stations(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("plan/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().Key()[len("plan/"):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

var _ Store = (*BadgerStore)(nil)
