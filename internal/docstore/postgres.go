package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/bandmate/bandmate/internal/telemetry"
)

// Config holds Postgres connection configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING gin (data);
`

// PostgresStore implements Store on a single JSONB documents table.
type PostgresStore struct {
	db            *sql.DB
	numericFields map[string]bool
}

// Option configures a PostgresStore.
type Option func(*PostgresStore)

// WithNumericFields marks document fields that must be compared and
// ordered numerically rather than as text.
func WithNumericFields(fields ...string) Option {
	return func(s *PostgresStore) {
		for _, f := range fields {
			s.numericFields[f] = true
		}
	}
}

// NewPostgresStore opens an instrumented connection, verifies it and
// ensures the documents table exists.
func NewPostgresStore(config Config, opts ...Option) (*PostgresStore, error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"host":      config.Host,
		"port":      config.Port,
		"database":  config.DBName,
		"ssl_mode":  config.SSLMode,
		"operation": "docstore_connection",
	})

	logger.Info("Establishing document store connection")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.User,
		config.Password,
		config.DBName,
		config.SSLMode,
	)

	port, _ := strconv.Atoi(config.Port)

	db, err := otelsql.Open("postgres", dsn,
		otelsql.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBName(config.DBName),
			semconv.NetPeerName(config.Host),
			semconv.NetPeerPort(port),
		),
	)
	if err != nil {
		logger.WithError(err).Error("Failed to open document store connection")
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping document store")
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		logger.WithError(err).Error("Failed to ensure documents table")
		return nil, fmt.Errorf("failed to ensure documents table: %w", err)
	}

	store := &PostgresStore{
		db:            db,
		numericFields: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(store)
	}

	logger.Info("Document store connection established successfully")
	return store, nil
}

// Collection returns a handle for the named collection.
func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{store: s, name: name}
}

// DB exposes the underlying pool for health checks.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type pgCollection struct {
	store *PostgresStore
	name  string
}

// fieldExpr renders the SQL expression extracting a document field.
func (c *pgCollection) fieldExpr(field string) string {
	if c.store.numericFields[field] {
		return fmt.Sprintf("((data->>%s)::numeric)", quoteLiteral(field))
	}
	return fmt.Sprintf("(data->>%s)", quoteLiteral(field))
}

// quoteLiteral quotes a field name as a SQL string literal. Field names
// come from code, never from request input, but quoting keeps them inert.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (c *pgCollection) Get(ctx context.Context, id string) (*Document, error) {
	var raw []byte
	err := c.store.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		c.name, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	data := make(map[string]interface{})
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return &Document{ID: id, Data: data}, nil
}

func (c *pgCollection) Set(ctx context.Context, id string, data map[string]interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`,
		c.name, id, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

func (c *pgCollection) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode update for %s: %w", id, err)
	}

	res, err := c.store.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $3::jsonb
		WHERE collection = $1 AND id = $2`,
		c.name, id, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollection) Delete(ctx context.Context, id string) error {
	res, err := c.store.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		c.name, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgCollection) Query(ctx context.Context, q Query) ([]*Document, error) {
	where := []string{"collection = $1"}
	args := []interface{}{c.name}

	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual:
			args = append(args, f.Value)
			where = append(where, fmt.Sprintf("%s = $%d", c.fieldExpr(f.Field), len(args)))
		case OpGreaterOrEqual:
			args = append(args, f.Value)
			where = append(where, fmt.Sprintf("%s >= $%d", c.fieldExpr(f.Field), len(args)))
		case OpLessThan:
			args = append(args, f.Value)
			where = append(where, fmt.Sprintf("%s < $%d", c.fieldExpr(f.Field), len(args)))
		case OpArrayContainsAny:
			values, ok := f.Value.([]string)
			if !ok {
				return nil, fmt.Errorf("array-contains-any on %q requires []string", f.Field)
			}
			args = append(args, pq.Array(values))
			where = append(where, fmt.Sprintf("(data->%s) ?| $%d::text[]", quoteLiteral(f.Field), len(args)))
		default:
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}

	dir := "ASC"
	cmp := ">"
	if q.OrderDir == Descending {
		dir = "DESC"
		cmp = "<"
	}

	orderBy := "id " + dir
	if q.OrderField != "" {
		orderBy = fmt.Sprintf("%s %s, id %s", c.fieldExpr(q.OrderField), dir, dir)
	}

	if q.StartAfter != "" {
		var exists bool
		err := c.store.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`,
			c.name, q.StartAfter,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
		if !exists {
			return nil, ErrCursorNotFound
		}

		args = append(args, q.StartAfter)
		n := len(args)
		if q.OrderField == "" {
			where = append(where, fmt.Sprintf("id %s $%d", cmp, n))
		} else {
			expr := c.fieldExpr(q.OrderField)
			where = append(where, fmt.Sprintf(
				"(%s, id) %s ((SELECT %s FROM documents WHERE collection = $1 AND id = $%d), $%d)",
				expr, cmp, expr, n, n,
			))
		}
	}

	query := fmt.Sprintf(
		`SELECT id, data FROM documents WHERE %s ORDER BY %s`,
		strings.Join(where, " AND "), orderBy,
	)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		data := make(map[string]interface{})
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		docs = append(docs, &Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}
