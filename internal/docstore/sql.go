package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Dialect captures the JSON operators of a SQL backend.
type Dialect struct {
	Name        string
	DriverName  string
	schema      []string
	placeholder func(n int) string
	contains    func(ph string) string
	field       func(name string) string
	merge       func(body, collection, id string) string
	upsert      string
}

var Postgres = Dialect{
	Name:       "postgres",
	DriverName: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection VARCHAR(64) NOT NULL,
			id VARCHAR(64) NOT NULL,
			body JSONB NOT NULL,
			seq BIGSERIAL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_body ON documents USING GIN (body)`,
	},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	contains:    func(ph string) string { return "body @> " + ph + "::jsonb" },
	field:       func(name string) string { return "body->'" + name + "'" },
	merge: func(body, collection, id string) string {
		return "UPDATE documents SET body = body || " + body + "::jsonb WHERE collection = " + collection + " AND id = " + id
	},
	upsert: `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body`,
}

var MySQL = Dialect{
	Name:       "mysql",
	DriverName: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			seq BIGINT NOT NULL AUTO_INCREMENT,
			collection VARCHAR(64) NOT NULL,
			id VARCHAR(64) NOT NULL,
			body JSON NOT NULL,
			PRIMARY KEY (seq),
			UNIQUE KEY uq_documents_collection_id (collection, id)
		)`,
	},
	placeholder: func(int) string { return "?" },
	contains:    func(ph string) string { return "JSON_CONTAINS(body, " + ph + ")" },
	field:       func(name string) string { return "JSON_EXTRACT(body, '$." + name + "')" },
	merge: func(body, collection, id string) string {
		return "UPDATE documents SET body = JSON_MERGE_PATCH(body, " + body + ") WHERE collection = " + collection + " AND id = " + id
	},
	upsert: `INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body)`,
}

func DialectFor(name string) (Dialect, error) {
	switch name {
	case Postgres.Name:
		return Postgres, nil
	case MySQL.Name:
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unknown document store dialect %q", name)
	}
}

// SQLStore keeps every collection in one table of JSON bodies.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *logrus.Logger
	now     func() time.Time
}

// OpenSQL connects, waits for the database to answer and creates the schema.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, logger *logrus.Logger) (*SQLStore, error) {
	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect.Name, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	var pingErr error
	for i := 0; i < 30; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			logger.WithField("dialect", dialect.Name).Info("Database connection established")
			break
		}
		logger.WithField("dialect", dialect.Name).Info("Waiting for database...")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, pingErr)
	}

	store := NewSQLStore(db, dialect, logger)
	if err := store.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLStore(db *sql.DB, dialect Dialect, logger *logrus.Logger) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, logger: logger, now: time.Now}
}

func (s *SQLStore) CreateSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) List(ctx context.Context, collection string, constraints ...Constraint) ([]Document, error) {
	q, err := BuildQuery(constraints...)
	if err != nil {
		return nil, err
	}

	ph := s.dialect.placeholder
	args := []interface{}{collection}
	var b strings.Builder
	b.WriteString("SELECT id, body FROM documents WHERE collection = " + ph(1))
	for _, f := range q.filters {
		probe, err := json.Marshal(map[string]interface{}{f.field: f.value})
		if err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrInvalidQuery, f.field, err)
		}
		args = append(args, string(probe))
		b.WriteString(" AND " + s.dialect.contains(ph(len(args))))
	}
	if q.order != nil {
		b.WriteString(" ORDER BY " + s.dialect.field(q.order.field))
		if q.order.direction == Descending {
			b.WriteString(" DESC")
		}
		b.WriteString(", seq")
	} else {
		b.WriteString(" ORDER BY seq")
	}
	if q.limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", q.limit))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrUnavailable, collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrUnavailable, collection, err)
		}
		doc, err := decodeStored(id, body)
		if err != nil {
			s.logger.WithError(err).WithField("collection", collection).Warn("Skipping unreadable document")
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrUnavailable, collection, err)
	}
	return docs, nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	ph := s.dialect.placeholder
	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = "+ph(1)+" AND id = "+ph(2),
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return decodeStored(id, body)
}

func (s *SQLStore) Insert(ctx context.Context, collection string, fields Document) (string, error) {
	doc, err := Encode(fields)
	if err != nil {
		return "", err
	}
	stampInsert(collection, doc, s.now())
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	id := uuid.New().String()
	ph := s.dialect.placeholder
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, body) VALUES ("+ph(1)+", "+ph(2)+", "+ph(3)+")",
		collection, id, string(body),
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert %s: %v", ErrUnavailable, collection, err)
	}
	return id, nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields Document) error {
	patch, err := Encode(fields)
	if err != nil {
		return err
	}
	stampUpdate(collection, patch, s.now())
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	ph := s.dialect.placeholder
	result, err := s.db.ExecContext(ctx, s.dialect.merge(ph(1), ph(2), ph(3)), string(body), collection, id)
	if err != nil {
		return fmt.Errorf("%w: update %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// MySQL reports zero affected rows when the merge changes nothing.
		if _, err := s.Get(ctx, collection, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Put(ctx context.Context, collection, id string, fields Document) error {
	doc, err := Encode(fields)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, collection, id, string(body)); err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	ph := s.dialect.placeholder
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = "+ph(1)+" AND id = "+ph(2),
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return nil
}
