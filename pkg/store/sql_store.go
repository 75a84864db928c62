package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"

	"github.com/macawi-ai/domovoi/pkg/events"
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS domovoi_events (
	run_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	id TEXT NOT NULL,
	ts TEXT NOT NULL,
	kind_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	actors TEXT NOT NULL,
	severity TEXT NOT NULL,
	delta TEXT,
	prev_hash TEXT NOT NULL DEFAULT '',
	hash TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
)`

// SQLStore keeps events in the domovoi_events table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ EventStore = (*SQLStore)(nil)

// NewSQLStore wraps an open database and creates the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q", dialect)
	}
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "store", "dialect", string(dialect)),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate event store: %w", err)
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) a sqlite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	s, err := NewSQLStore(ctx, db, DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	s, err := NewSQLStore(ctx, db, DialectPostgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebind rewrites ? placeholders for the store's dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Write implements Sink.
func (s *SQLStore) Write(ctx context.Context, runID string, evs []events.Event) error {
	return s.Append(ctx, runID, evs)
}

// Append inserts evs in one transaction.
func (s *SQLStore) Append(ctx context.Context, runID string, evs []events.Event) error {
	if runID == "" {
		return ErrEmptyRunID
	}
	if len(evs) == 0 {
		return nil
	}

	query := s.rebind(`INSERT INTO domovoi_events (
		run_id, seq, id, ts, kind_type, payload, actors, severity, delta, prev_hash, hash
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range evs {
		row, err := encodeRow(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			runID, int64(e.Sequence), row.id, row.ts, row.kindType, row.payload, row.actors, string(e.Severity), row.delta, e.PrevHash, e.Hash,
		); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", e.Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	s.logger.DebugContext(ctx, "events stored", "run_id", runID, "count", len(evs))
	return nil
}

// List returns the events of runID in sequence order.
func (s *SQLStore) List(ctx context.Context, runID string) ([]events.Event, error) {
	query := s.rebind(`
		SELECT seq, id, ts, payload, actors, severity, delta, prev_hash, hash
		FROM domovoi_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`)
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []events.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

type encodedRow struct {
	id       string
	ts       string
	kindType string
	payload  string
	actors   string
	delta    sql.NullString
}

func encodeRow(e events.Event) (encodedRow, error) {
	payload, err := events.MarshalKind(e.Kind)
	if err != nil {
		return encodedRow{}, fmt.Errorf("failed to encode event %d: %w", e.Sequence, err)
	}
	actors := e.Actors
	if actors == nil {
		actors = []uuid.UUID{}
	}
	actorsJSON, err := json.Marshal(actors)
	if err != nil {
		return encodedRow{}, err
	}
	row := encodedRow{
		id:       e.ID.String(),
		ts:       e.Timestamp.UTC().Format(time.RFC3339Nano),
		kindType: e.Kind.Type(),
		payload:  string(payload),
		actors:   string(actorsJSON),
	}
	if e.Delta != nil {
		d, err := json.Marshal(e.Delta)
		if err != nil {
			return encodedRow{}, err
		}
		row.delta = sql.NullString{String: string(d), Valid: true}
	}
	return row, nil
}

func scanEvent(rows *sql.Rows) (events.Event, error) {
	var (
		seq                      int64
		id, ts, payload, actors  string
		severity, prevHash, hash string
		delta                    sql.NullString
	)
	if err := rows.Scan(&seq, &id, &ts, &payload, &actors, &severity, &delta, &prevHash, &hash); err != nil {
		return events.Event{}, err
	}

	e := events.Event{
		Sequence: uint64(seq),
		Severity: events.Severity(severity),
		PrevHash: prevHash,
		Hash:     hash,
	}
	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return events.Event{}, fmt.Errorf("event %d: bad id: %w", seq, err)
	}
	if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return events.Event{}, fmt.Errorf("event %d: bad timestamp: %w", seq, err)
	}
	if e.Kind, err = events.UnmarshalKind([]byte(payload)); err != nil {
		return events.Event{}, fmt.Errorf("event %d: %w", seq, err)
	}
	if err := json.Unmarshal([]byte(actors), &e.Actors); err != nil {
		return events.Event{}, fmt.Errorf("event %d: bad actors: %w", seq, err)
	}
	if delta.Valid && delta.String != "" {
		e.Delta = &events.VarietyDelta{}
		if err := json.Unmarshal([]byte(delta.String), e.Delta); err != nil {
			return events.Event{}, fmt.Errorf("event %d: bad delta: %w", seq, err)
		}
	}
	return e, nil
}
