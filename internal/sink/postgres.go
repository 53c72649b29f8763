package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"activity-export/internal/common/errors"
)

// baseColumns is the number of leading row values stored in dedicated columns.
// Everything after them lands in the fields document.
const baseColumns = 5

// Postgres stores rows in a single transaction committed on Close, so a run
// is visible either completely or up to the point it failed.
type Postgres struct {
	db      *sql.DB
	table   string
	runID   string
	columns []string
	tx      *sql.Tx
	insert  *sql.Stmt
}

func NewPostgres(db *sql.DB, table, runID string) *Postgres {
	return &Postgres{db: db, table: table, runID: runID}
}

func (s *Postgres) WriteHeader(ctx context.Context, columns []string) error {
	if len(columns) < baseColumns {
		return errors.NewSinkWriteError("postgres", fmt.Errorf("expected at least %d columns, got %d", baseColumns, len(columns)))
	}
	s.columns = columns

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewSinkWriteError("postgres", err)
	}
	s.tx = tx

	table := pq.QuoteIdentifier(s.table)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	activity_id BIGINT NOT NULL,
	activity_date TEXT NOT NULL,
	activity_type_id INTEGER NOT NULL,
	activity_type_name TEXT NOT NULL,
	lead_id BIGINT NOT NULL,
	fields JSONB NOT NULL,
	PRIMARY KEY (run_id, activity_id)
)`, table)); err != nil {
		return errors.NewSinkWriteError("postgres", err)
	}

	s.insert, err = tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (run_id, activity_id, activity_date, activity_type_id, activity_type_name, lead_id, fields) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		table))
	if err != nil {
		return errors.NewSinkWriteError("postgres", err)
	}
	return nil
}

func (s *Postgres) WriteRow(ctx context.Context, row []string) error {
	if s.insert == nil {
		return errors.NewSinkWriteError("postgres", fmt.Errorf("row written before header"))
	}
	fields := make(map[string]string, len(s.columns)-baseColumns)
	for i := baseColumns; i < len(s.columns) && i < len(row); i++ {
		fields[s.columns[i]] = row[i]
	}
	doc, err := json.Marshal(fields)
	if err != nil {
		return errors.NewSinkWriteError("postgres", err)
	}

	if _, err := s.insert.ExecContext(ctx, s.runID, row[0], row[1], row[2], row[3], row[4], string(doc)); err != nil {
		return errors.NewSinkWriteError("postgres", err)
	}
	return nil
}

func (s *Postgres) Close(context.Context) error {
	if s.tx == nil {
		return nil
	}
	if s.insert != nil {
		_ = s.insert.Close()
	}
	if err := s.tx.Commit(); err != nil {
		return errors.NewSinkWriteError("postgres", err)
	}
	return nil
}
