package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/artpar/calm/adapters/clock"
	"github.com/artpar/calm/adapters/idgen"
	"github.com/artpar/calm/core/apierr"
	"github.com/artpar/calm/core/convention"
	"github.com/artpar/calm/core/schema"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Database with SQLite. Each collection is a table
// holding one JSON body per record.
type SQLiteStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	now   func() time.Time
	newID func() string

	// collections maps collection names to open collections
	collections map[string]*sqliteCollection
}

// NewSQLiteStore opens a SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withDriverParams(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to an in-memory database sees a different database.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return NewSQLiteStoreFromDB(db), nil
}

// withDriverParams appends the journal and busy-timeout settings to dsn,
// keeping any query string it already has.
func withDriverParams(dsn string) string {
	const params = "_journal_mode=WAL&_busy_timeout=5000"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

// NewSQLiteStoreFromDB creates a SQLite storage from an existing connection.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:          db,
		now:         clock.Real{}.Now,
		newID:       idgen.UUID{}.New,
		collections: make(map[string]*sqliteCollection),
	}
}

// SetClock overrides the time source used for timestamps.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Collection creates the table for a module if needed and returns its collection.
func (s *SQLiteStore) Collection(ctx context.Context, mod convention.Derived) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[mod.Collection]; ok {
		return c, nil
	}

	if !schema.IsValidIdentifier(mod.Collection) {
		return nil, fmt.Errorf("invalid collection name %q", mod.Collection)
	}

	v, err := newValidator(mod)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", mod.Collection, err)
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
  id TEXT PRIMARY KEY,
  version INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  body TEXT NOT NULL
)`, mod.Collection)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("create table %s: %w", mod.Collection, err)
	}

	indexSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %q ON %q(created_at)",
		"idx_"+mod.Collection+"_created_at", mod.Collection)
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	c := &sqliteCollection{
		store:     s,
		mod:       mod,
		table:     mod.Collection,
		validator: v,
	}
	s.collections[mod.Collection] = c
	return c, nil
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// SetIDGenerator overrides how ids of new records are generated.
func (s *SQLiteStore) SetIDGenerator(g idgen.Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newID = g.New
}

func (s *SQLiteStore) generateID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newID()
}

// sqliteCollection implements Collection for one table.
type sqliteCollection struct {
	store     *SQLiteStore
	mod       convention.Derived
	table     string
	validator *validator
}

const selectColumns = "id, version, created_at, updated_at, body"

// Create inserts a new record.
func (c *sqliteCollection) Create(ctx context.Context, doc map[string]any) (*Document, error) {
	fields := body(doc)
	if err := c.validator.validateCreate(fields); err != nil {
		return nil, err
	}

	id, err := c.idFrom(doc)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, apierr.Validationf("invalid document: %v", err)
	}

	now := c.store.clock()
	insertSQL := fmt.Sprintf("INSERT INTO %q (%s) VALUES (?, 0, ?, ?, ?)", c.table, selectColumns)
	if _, err := c.store.db.ExecContext(ctx, insertSQL, id, now.Format(timeLayout), now.Format(timeLayout), string(raw)); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, apierr.Validationf("%s with _id %q already exists", c.mod.Name, id)
		}
		return nil, errors.Wrapf(err, "insert into %s", c.table)
	}

	return c.FindByID(ctx, id)
}

// idFrom returns the client-supplied _id or a new one.
func (c *sqliteCollection) idFrom(doc map[string]any) (string, error) {
	raw, ok := doc[convention.IDField]
	if !ok || raw == nil {
		return c.store.generateID(), nil
	}
	id, ok := raw.(string)
	if !ok {
		return "", apierr.Validation("_id must be a string")
	}
	if id == "" {
		return c.store.generateID(), nil
	}
	return id, nil
}

// Find retrieves records matching filter.
func (c *sqliteCollection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]*Document, error) {
	where, args, err := c.whereClause(filter)
	if err != nil {
		return nil, err
	}

	orderBy, err := c.orderClause(opts.Sort)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %q%s ORDER BY %s", selectColumns, c.table, where, orderBy)
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Skip)
	} else if opts.Skip > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, opts.Skip)
	}

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s", c.table)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", c.table)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "find in %s", c.table)
	}

	return docs, nil
}

// Count counts records matching filter.
func (c *sqliteCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	where, args, err := c.whereClause(filter)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %q%s", c.table, where)
	if err := c.store.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "count %s", c.table)
	}
	return count, nil
}

// FindByID retrieves a record by id.
func (c *sqliteCollection) FindByID(ctx context.Context, id string) (*Document, error) {
	query := fmt.Sprintf("SELECT %s FROM %q WHERE id = ?", selectColumns, c.table)
	doc, err := scanDocument(c.store.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find %s by id", c.table)
	}
	return doc, nil
}

// FindByIDAndUpdate merges patch into the stored body, bumps the version and
// returns the updated record.
func (c *sqliteCollection) FindByIDAndUpdate(ctx context.Context, id string, patch map[string]any) (*Document, error) {
	fields := body(patch)
	if err := c.validator.validateUpdate(fields); err != nil {
		return nil, err
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin update")
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM %q WHERE id = ?", selectColumns, c.table)
	doc, err := scanDocument(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find %s by id", c.table)
	}

	for k, v := range fields {
		doc.Fields[k] = v
	}
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return nil, apierr.Validationf("invalid document: %v", err)
	}

	now := c.store.clock()
	updateSQL := fmt.Sprintf("UPDATE %q SET body = ?, version = version + 1, updated_at = ? WHERE id = ?", c.table)
	if _, err := tx.ExecContext(ctx, updateSQL, string(raw), now.Format(timeLayout), id); err != nil {
		return nil, errors.Wrapf(err, "update %s", c.table)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit update")
	}

	// Re-read so numbers come back in their stored representation.
	return c.FindByID(ctx, id)
}

// FindByIDAndDelete removes a record and returns it.
func (c *sqliteCollection) FindByIDAndDelete(ctx context.Context, id string) (*Document, error) {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin delete")
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM %q WHERE id = ?", selectColumns, c.table)
	doc, err := scanDocument(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find %s by id", c.table)
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %q WHERE id = ?", c.table)
	if _, err := tx.ExecContext(ctx, deleteSQL, id); err != nil {
		return nil, errors.Wrapf(err, "delete from %s", c.table)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit delete")
	}

	return doc, nil
}

// column returns the SQL expression for a field.
func (c *sqliteCollection) column(field string) (string, error) {
	switch field {
	case convention.IDField:
		return "id", nil
	case convention.CreatedAtField:
		return "created_at", nil
	case convention.UpdatedAtField:
		return "updated_at", nil
	case VersionField:
		return "version", nil
	}
	if !schema.IsValidIdentifier(field) {
		return "", apierr.Validationf("invalid field name %q", field)
	}
	return fmt.Sprintf("json_extract(body, '$.%s')", field), nil
}

// whereClause builds an exact-match WHERE clause. Numeric schema fields are
// compared as numbers, everything else as text, so query-string values match
// stored JSON values.
func (c *sqliteCollection) whereClause(filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conditions []string
	var args []any
	for _, k := range keys {
		col, err := c.column(k)
		if err != nil {
			return "", nil, err
		}

		v := filter[k]
		if v == nil {
			conditions = append(conditions, col+" IS NULL")
			continue
		}

		switch c.fieldType(k) {
		case schema.FieldTypeNumber, schema.FieldTypeInt:
			n, err := toFloat(v)
			if err != nil {
				return "", nil, apierr.Validationf("filter %s: expected a number", k)
			}
			conditions = append(conditions, col+" = ?")
			args = append(args, n)
		case schema.FieldTypeBool:
			b, err := toBool(v)
			if err != nil {
				return "", nil, apierr.Validationf("filter %s: expected a boolean", k)
			}
			conditions = append(conditions, col+" = ?")
			args = append(args, b)
		default:
			conditions = append(conditions, "CAST("+col+" AS TEXT) = ?")
			args = append(args, fmt.Sprint(v))
		}
	}

	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// orderClause builds ORDER BY with rowid as a stable tie-break.
func (c *sqliteCollection) orderClause(sortBy []SortField) (string, error) {
	if len(sortBy) == 0 {
		sortBy = NewestFirst
	}

	parts := make([]string, 0, len(sortBy)+1)
	for _, s := range sortBy {
		col, err := c.column(s.Field)
		if err != nil {
			return "", err
		}
		if s.Desc {
			parts = append(parts, col+" DESC")
		} else {
			parts = append(parts, col+" ASC")
		}
	}

	if sortBy[0].Desc {
		parts = append(parts, "rowid DESC")
	} else {
		parts = append(parts, "rowid ASC")
	}
	return strings.Join(parts, ", "), nil
}

func (c *sqliteCollection) fieldType(name string) schema.FieldType {
	if f, ok := c.mod.Source.Schema[name]; ok {
		return f.Type
	}
	return schema.FieldTypeString
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                  Document
		createdAt, updatedAt string
		raw                  string
	)
	if err := row.Scan(&doc.ID, &doc.Version, &createdAt, &updatedAt, &raw); err != nil {
		return nil, err
	}

	var err error
	if doc.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	doc.Fields = make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &doc, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func toBool(v any) (int, error) {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case string:
		parsed, err := strconv.ParseBool(x)
		if err != nil {
			return 0, err
		}
		b = parsed
	default:
		return 0, fmt.Errorf("not a boolean: %T", v)
	}
	if b {
		return 1, nil
	}
	return 0, nil
}
