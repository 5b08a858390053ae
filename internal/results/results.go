// Package results keeps an optional SQLite ledger of reduction invocations:
// the per-run scalars and group statistics each invocation produced.
// Histogram bin contents are never stored.
package results

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/reduce"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind names the reduction an invocation ran.
type Kind string

const (
	KindEfficiency Kind = "efficiency"
	KindStability  Kind = "stability"
)

// GroupRecord is the stored summary of one sub-group.
type GroupRecord struct {
	Group catalog.SubGroup
	Stats reduce.GroupStats
	Band  reduce.ControlBand
}

// Invocation is one recorded reduction.
type Invocation struct {
	ID         uuid.UUID
	Kind       Kind
	Detector   int
	RunType    config.RunType
	Threshold  float64
	NBins      int
	ConfigPath string
	Version    string
	StartedAt  time.Time

	Runs   []reduce.RunMetrics
	Groups []GroupRecord
}

// Ledger is a results database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and migrates it to the
// latest schema.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open results db %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open results db %s: %w", path, err)
	}
	l := &Ledger{db: db}
	if err := l.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// MigrateUp runs all pending migrations. It is a no-op at the latest version.
func (l *Ledger) MigrateUp() error {
	m, err := l.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version, 0 if none.
func (l *Ledger) SchemaVersion() (uint, bool, error) {
	m, err := l.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (l *Ledger) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(l.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// nullable maps non-finite values to NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Record stores inv in a single transaction. A zero ID is replaced by a new
// random UUID, which is returned.
func (l *Ledger) Record(ctx context.Context, inv Invocation) (uuid.UUID, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.StartedAt.IsZero() {
		inv.StartedAt = time.Now()
	}
	id := inv.ID.String()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO invocations
		(invocation_id, kind, detector, run_type, threshold, nbins, config_path, version, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(inv.Kind), inv.Detector, string(inv.RunType), inv.Threshold, inv.NBins,
		inv.ConfigPath, inv.Version, inv.StartedAt.UnixNano()); err != nil {
		return uuid.Nil, fmt.Errorf("insert invocation: %w", err)
	}

	runStmt, err := tx.PrepareContext(ctx, `INSERT INTO run_metrics
		(invocation_id, run_index, run_id, entry_count, total_intensity, efficiency, efficiency_err, peak_position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("prepare run insert: %w", err)
	}
	defer runStmt.Close()
	for _, m := range inv.Runs {
		if _, err := runStmt.ExecContext(ctx, id, m.Index, m.RunID, m.EntryCount,
			nullable(m.TotalIntensity), nullable(m.Efficiency), nullable(m.Error), nullable(m.PeakPosition)); err != nil {
			return uuid.Nil, fmt.Errorf("insert run %d: %w", m.RunID, err)
		}
	}

	for _, g := range inv.Groups {
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_stats
			(invocation_id, sub_group, n, mean, stddev, band_lower, band_upper)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, string(g.Group), g.Stats.N, nullable(g.Stats.Mean), nullable(g.Stats.StdDev),
			nullable(g.Band.Lower), nullable(g.Band.Upper)); err != nil {
			return uuid.Nil, fmt.Errorf("insert group %s: %w", g.Group, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	monitoring.Logf("Recorded %s invocation %s (%d runs)", inv.Kind, id, len(inv.Runs))
	return inv.ID, nil
}

// Invocations lists recorded invocations, newest first, without their runs
// and groups.
func (l *Ledger) Invocations(ctx context.Context) ([]Invocation, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT invocation_id, kind, detector, run_type, threshold,
		nbins, config_path, version, started_at FROM invocations ORDER BY started_at DESC, invocation_id`)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		var (
			inv            Invocation
			id, kind, rt   string
			startedAtNanos int64
		)
		if err := rows.Scan(&id, &kind, &inv.Detector, &rt, &inv.Threshold, &inv.NBins,
			&inv.ConfigPath, &inv.Version, &startedAtNanos); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if inv.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invocation id %q: %w", id, err)
		}
		inv.Kind = Kind(kind)
		inv.RunType = config.RunType(rt)
		inv.StartedAt = time.Unix(0, startedAtNanos)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Runs returns the per-run metrics of an invocation in catalog order.
func (l *Ledger) Runs(ctx context.Context, id uuid.UUID) ([]reduce.RunMetrics, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT run_index, run_id, entry_count, total_intensity,
		efficiency, efficiency_err, peak_position FROM run_metrics
		WHERE invocation_id = ? ORDER BY run_index`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []reduce.RunMetrics
	for rows.Next() {
		var (
			m                        reduce.RunMetrics
			total, eff, effErr, peak sql.NullFloat64
		)
		if err := rows.Scan(&m.Index, &m.RunID, &m.EntryCount, &total, &eff, &effErr, &peak); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		m.TotalIntensity, m.Efficiency, m.Error, m.PeakPosition = orNaN(total), orNaN(eff), orNaN(effErr), orNaN(peak)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Groups returns the stored group statistics of an invocation.
func (l *Ledger) Groups(ctx context.Context, id uuid.UUID) ([]GroupRecord, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT sub_group, n, mean, stddev, band_lower, band_upper
		FROM group_stats WHERE invocation_id = ? ORDER BY sub_group`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var out []GroupRecord
	for rows.Next() {
		var (
			g                       GroupRecord
			name                    string
			mean, std, lower, upper sql.NullFloat64
		)
		if err := rows.Scan(&name, &g.Stats.N, &mean, &std, &lower, &upper); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.Group = catalog.SubGroup(name)
		g.Stats.Mean, g.Stats.StdDev = orNaN(mean), orNaN(std)
		g.Band = reduce.ControlBand{Center: g.Stats.Mean, Lower: orNaN(lower), Upper: orNaN(upper)}
		out = append(out, g)
	}
	return out, rows.Err()
}
