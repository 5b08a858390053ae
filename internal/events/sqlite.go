package events

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/banshee-data/calibration.report/internal/catalog"
	_ "modernc.org/sqlite"
)

// Schema names the tables and columns read from a run file.
type Schema struct {
	AmplitudeTable  string
	DetectorColumn  string
	AmplitudeColumn string
	PulseTable      string
	PulseColumn     string
}

// DefaultSchema matches the run files written by the acquisition export:
// a "FC-U" table of (detn, amp) rows and a "PKUP" table of PulseIntensity.
var DefaultSchema = Schema{
	AmplitudeTable:  "FC-U",
	DetectorColumn:  "detn",
	AmplitudeColumn: "amp",
	PulseTable:      "PKUP",
	PulseColumn:     "PulseIntensity",
}

// SQLiteSource reads run files stored as SQLite databases. Each call opens
// the run file read-only and closes it before returning.
type SQLiteSource struct {
	Schema Schema
}

// NewSQLiteSource returns a source using DefaultSchema.
func NewSQLiteSource() *SQLiteSource {
	return &SQLiteSource{Schema: DefaultSchema}
}

// Amplitudes implements Source.
func (s *SQLiteSource) Amplitudes(ctx context.Context, run catalog.Run, det int) ([]float64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		quoteIdent(s.Schema.AmplitudeColumn),
		quoteIdent(s.Schema.AmplitudeTable),
		quoteIdent(s.Schema.DetectorColumn))
	return s.column(ctx, run, query, det)
}

// PulseIntensities implements Source.
func (s *SQLiteSource) PulseIntensities(ctx context.Context, run catalog.Run) ([]float64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s",
		quoteIdent(s.Schema.PulseColumn),
		quoteIdent(s.Schema.PulseTable))
	return s.column(ctx, run, query)
}

func (s *SQLiteSource) column(ctx context.Context, run catalog.Run, query string, args ...interface{}) ([]float64, error) {
	info, err := os.Stat(run.Path)
	if err != nil {
		return nil, dataAccessError(run, "%v", err)
	}
	if info.IsDir() {
		return nil, dataAccessError(run, "run file is a directory")
	}

	db, err := sql.Open("sqlite", "file:"+run.Path+"?mode=ro")
	if err != nil {
		return nil, dataAccessError(run, "open: %v", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, dataAccessError(run, "query: %v", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, dataAccessError(run, "scan: %v", err)
		}
		if v.Valid {
			out = append(out, v.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dataAccessError(run, "rows: %v", err)
	}
	return out, nil
}

// RunData is the content of one run file.
type RunData struct {
	// Amplitudes maps detector id -> amplitude samples.
	Amplitudes map[int][]float64
	Pulses     []float64
}

// WriteRunFile creates (or replaces) a run file at path holding data.
func WriteRunFile(ctx context.Context, path string, schema Schema, data RunData) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing run file: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	ddl := fmt.Sprintf(`
		CREATE TABLE %s (%s INTEGER, %s DOUBLE);
		CREATE TABLE %s (%s DOUBLE);`,
		quoteIdent(schema.AmplitudeTable), quoteIdent(schema.DetectorColumn), quoteIdent(schema.AmplitudeColumn),
		quoteIdent(schema.PulseTable), quoteIdent(schema.PulseColumn))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create run tables: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ampStmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)",
		quoteIdent(schema.AmplitudeTable), quoteIdent(schema.DetectorColumn), quoteIdent(schema.AmplitudeColumn)))
	if err != nil {
		return err
	}
	defer ampStmt.Close()
	for det, amps := range data.Amplitudes {
		for _, a := range amps {
			if _, err := ampStmt.ExecContext(ctx, det, a); err != nil {
				return fmt.Errorf("failed to insert amplitude: %w", err)
			}
		}
	}

	pulseStmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)",
		quoteIdent(schema.PulseTable), quoteIdent(schema.PulseColumn)))
	if err != nil {
		return err
	}
	defer pulseStmt.Close()
	for _, p := range data.Pulses {
		if _, err := pulseStmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to insert pulse intensity: %w", err)
		}
	}

	return tx.Commit()
}

// quoteIdent quotes a SQL identifier; table names such as "FC-U" are not
// valid bare identifiers.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
