// Package sqlitestore implements stores.Store on a SQLite table.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nats-io/nuid"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/stores"
)

const (
	memory = ":memory:"
)

// Store is a document store backed by SQLite.
type Store struct {
	cfg   *Config
	db    *sql.DB
	codec docstream.Codec

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ stores.Store = &Store{}

// New creates a new Store with the provided configuration functions.
//
// Default configuration:
//   - File: ":memory:" (in-memory database)
//   - PurgeInterval: 0 (no background purge)
//   - Codec: MessagePack
func New(configFuncs ...ConfigFunc) (*Store, error) {
	cfg := &Config{}
	cfg.File(memory)
	for _, cf := range configFuncs {
		cf(cfg)
	}

	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := setup(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}

	s := &Store{
		cfg:   cfg,
		db:    db,
		codec: stores.ApplyOptions(cfg.options...).Codec,
		stop:  make(chan struct{}),
	}

	if cfg.purgeInterval > 0 {
		s.wg.Add(1)
		go s.purgeLoop(cfg.purgeInterval)
	}

	return s, nil
}

// Put inserts or replaces the document stored under key.
//
// Returns [stores.ErrClosed] if the store has been closed.
func (s *Store) Put(ctx context.Context, key string, doc docstream.Document, ttl time.Duration) error {
	if err := stores.ValidateKey(key); err != nil {
		return err
	}
	data, err := s.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	_, err = s.db.ExecContext(ctx,
		`
		insert into docs (
			key,
			data,
			expires_at
		) values (
			:key,
			:data,
			:expires_at
		)
		on conflict (key) do update set
			data = excluded.data,
			expires_at = excluded.expires_at
		`,
		sql.Named("key", key),
		sql.Named("data", data),
		sql.Named("expires_at", toTimestamp(expiresAt)),
	)
	return wrap(err)
}

// Get returns the document stored under key, ignoring expired rows.
func (s *Store) Get(ctx context.Context, key string) (docstream.Document, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`
		select data from docs
		where
			key = :key and
			(expires_at = 0 or expires_at > :now)
		`,
		sql.Named("key", key),
		sql.Named("now", toTimestamp(time.Now())),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return docstream.Document{}, false, nil
	}
	if err != nil {
		return docstream.Document{}, false, wrap(err)
	}

	doc, err := s.codec.Unmarshal(data)
	if err != nil {
		return docstream.Document{}, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return doc, true, nil
}

// Delete removes the document stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from docs where key = :key`,
		sql.Named("key", key),
	)
	return wrap(err)
}

// Purge deletes expired rows and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`
		delete from docs
		where
			expires_at != 0 and
			expires_at <= :now
		`,
		sql.Named("now", toTimestamp(time.Now())),
	)
	if err != nil {
		return 0, wrap(err)
	}
	return res.RowsAffected()
}

// Len returns the number of rows, expired or not.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from docs`).Scan(&n)
	return n, wrap(err)
}

// Close stops the purger and closes the underlying SQLite database.
//
// After closing, all methods on Store will return [stores.ErrClosed].
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) purgeLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_, _ = s.Purge(context.Background())
		}
	}
}

func wrap(err error) error {
	if err != nil && err.Error() == "sql: database is closed" {
		return stores.ErrClosed
	}
	return err
}

func open(cfg *Config) (*sql.DB, error) {
	uri := &url.URL{Scheme: "file", Opaque: cfg.file}
	params := url.Values{}
	params.Add("_txlock", "immediate")
	params.Add("_timeout", "5000") // 5s
	if cfg.file == memory {
		uri.Opaque = nuid.Next()
		params.Add("mode", "memory")
		params.Add("cache", "shared")
	} else {
		params.Add("_journal", "wal")
		params.Add("_sync", "normal")
	}
	uri.RawQuery = params.Encode()

	db, err := sql.Open("sqlite3", uri.String())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	if params.Get("mode") == "memory" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	return db, nil
}

func setup(db *sql.DB) error {
	if _, err := db.Exec(
		`
		create table if not exists docs (
			key        text primary key,
			data       blob not null,
			expires_at int not null
		) strict
		`,
	); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(
		`
		create index if not exists idx_docs_expires_at
		on docs (expires_at)
		where expires_at != 0
		`,
	); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	return nil
}

// toTimestamp stores times as Unix milliseconds; the zero time maps to 0.
func toTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
