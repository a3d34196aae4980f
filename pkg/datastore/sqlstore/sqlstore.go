// Package sqlstore provides a database/sql datastore adapter. Documents are kept
// as JSON in a single table keyed by collection and id. SQLite is served by
// modernc.org/sqlite and PostgreSQL by github.com/lib/pq.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
)

// TableName is the table documents are stored in.
const TableName = "sails_records"

// Dialect describes the SQL differences between supported databases.
type Dialect struct {
	// Name is the adapter name the dialect registers under.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Numbered placeholders ($1, $2) instead of ?.
	Numbered bool
	// LockRows appends FOR UPDATE when reading inside an update.
	LockRows bool
	DDL      string
}

var (
	// SQLite stores documents as TEXT.
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		DDL: `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (collection, id)
)`,
	}

	// Postgres stores documents as jsonb.
	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "postgres",
		Numbered: true,
		LockRows: true,
		DDL: `CREATE TABLE IF NOT EXISTS ` + TableName + ` (
  collection text NOT NULL,
  id text NOT NULL,
  data jsonb NOT NULL,
  created_at bigint NOT NULL,
  updated_at bigint NOT NULL,
  PRIMARY KEY (collection, id)
)`,
	}
)

func init() {
	for _, d := range []Dialect{SQLite, Postgres} {
		dialect := d
		datastore.Register(dialect.Name, func(ctx context.Context, cfg datastore.ConnectionConfig) (datastore.Adapter, error) {
			return Open(ctx, dialect, cfg.DSN)
		})
	}
}

// Store is a database/sql backed datastore.Adapter.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and ensures the documents table exists.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.NewConfigError(dialect.Name, "dsn is required", nil)
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, errors.NewAdapterError(dialect.Name, "open", "", err)
	}
	if dialect.Driver == SQLite.Driver {
		// A single connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	store, err := NewWithDB(ctx, dialect, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB reuses an existing *sql.DB.
func NewWithDB(ctx context.Context, dialect Dialect, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.NewConfigError(dialect.Name, "db is required", nil)
	}
	pingCtx, cancel := context.WithTimeout(ctx, constants.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.NewAdapterError(dialect.Name, "ping", "", err)
	}
	if _, err := db.ExecContext(ctx, dialect.DDL); err != nil {
		return nil, errors.NewAdapterError(dialect.Name, "ensure table", TableName, err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Name implements datastore.Adapter.
func (s *Store) Name() string { return s.dialect.Name }

// Find implements datastore.Adapter.
func (s *Store) Find(ctx context.Context, collection, id string) (map[string]any, error) {
	doc, err := s.find(ctx, s.db, collection, id, false)
	if err != nil {
		return nil, errors.NewAdapterError(s.dialect.Name, "find", collection, err)
	}
	return doc, nil
}

// Update implements datastore.Adapter. The read, merge and write happen in
// one transaction.
func (s *Store) Update(ctx context.Context, collection, id string, values map[string]any) ([]map[string]any, error) {
	docs, err := s.update(ctx, collection, id, values)
	if err != nil {
		return nil, errors.NewAdapterError(s.dialect.Name, "update", collection, err)
	}
	return docs, nil
}

func (s *Store) update(ctx context.Context, collection, id string, values map[string]any) ([]map[string]any, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.find(ctx, tx, collection, id, s.dialect.LockRows)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return []map[string]any{}, nil
	}

	updated := datastore.Merge(existing, values)
	data, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE `+TableName+` SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`),
		string(data), time.Now().UnixMilli(), collection, id,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	// Round-trip through JSON so callers see the same shapes Find returns.
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return []map[string]any{doc}, nil
}

// Create implements datastore.Adapter.
func (s *Store) Create(ctx context.Context, collection string, values map[string]any) (map[string]any, error) {
	doc, key := datastore.PrepareCreate(values)
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.NewAdapterError(s.dialect.Name, "create", collection, err)
	}

	// The primary key decides duplicates, so concurrent creates of one id
	// cannot both succeed.
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO `+TableName+` (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (collection, id) DO NOTHING`),
		collection, key, string(data), now, now,
	)
	if err != nil {
		return nil, errors.NewAdapterError(s.dialect.Name, "create", collection, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, errors.NewAdapterError(s.dialect.Name, "create", collection, err)
	}
	if inserted == 0 {
		return nil, errors.NewAlreadyExistsError(collection, key)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.NewAdapterError(s.dialect.Name, "create", collection, err)
	}
	return out, nil
}

// Close implements datastore.Adapter.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) find(ctx context.Context, q queryer, collection, id string, lock bool) (map[string]any, error) {
	query := `SELECT data FROM ` + TableName + ` WHERE collection = ? AND id = ?`
	if lock {
		query += " FOR UPDATE"
	}

	var raw []byte
	err := q.QueryRowContext(ctx, s.rebind(query), collection, id).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.NewParseError("json", TableName, err.Error(), err)
	}
	return doc, nil
}

// rebind rewrites ? placeholders to $n for dialects that number them.
func (s *Store) rebind(query string) string {
	if !s.dialect.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
