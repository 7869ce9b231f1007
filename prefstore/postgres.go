package prefstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/brunobiangulo/clinextract"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresConfig configures the persisted Preference Store backend.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore is the persisted Preference Store backend, grounded on
// codeready-toolchain-tarsy's database client: pgx/v5 over database/sql,
// schema managed by golang-migrate with migrations embedded via go:embed
// rather than Ent (a key-value preference table has no use for an ORM).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and applies pending migrations.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("prefstore: opening postgres: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefstore: pinging postgres: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB, database string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("prefstore: creating postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("prefstore: creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("prefstore: creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("prefstore: applying migrations: %w", err)
	}

	// Close only the source driver: calling m.Close() would also close
	// the *sql.DB we share with the rest of PostgresStore.
	return sourceDriver.Close()
}

func (p *PostgresStore) Get(ctx context.Context, doctorID string) (clinextract.DoctorPreferences, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT original_term, preferred, confidence, last_updated
		FROM doctor_preferences
		WHERE doctor_id = $1
	`, doctorID)
	if err != nil {
		return clinextract.DoctorPreferences{}, fmt.Errorf("prefstore: querying preferences: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]clinextract.PreferenceEntry)
	for rows.Next() {
		var term string
		var entry clinextract.PreferenceEntry
		if err := rows.Scan(&term, &entry.Preferred, &entry.Confidence, &entry.LastUpdated); err != nil {
			return clinextract.DoctorPreferences{}, err
		}
		entries[term] = entry
	}
	if err := rows.Err(); err != nil {
		return clinextract.DoctorPreferences{}, err
	}

	return clinextract.DoctorPreferences{DoctorID: doctorID, Entries: entries}, nil
}

func (p *PostgresStore) Put(ctx context.Context, doctorID, originalTerm string, entry clinextract.PreferenceEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO doctor_preferences (doctor_id, original_term, preferred, confidence, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, original_term) DO UPDATE SET
			preferred = excluded.preferred,
			confidence = excluded.confidence,
			last_updated = excluded.last_updated
	`, doctorID, originalTerm, entry.Preferred, entry.Confidence, entry.LastUpdated)
	if err != nil {
		return fmt.Errorf("prefstore: upserting preference: %w", err)
	}
	return nil
}

func (p *PostgresStore) BulkPut(ctx context.Context, doctorID string, entries map[string]clinextract.PreferenceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO doctor_preferences (doctor_id, original_term, preferred, confidence, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, original_term) DO UPDATE SET
			preferred = excluded.preferred,
			confidence = excluded.confidence,
			last_updated = excluded.last_updated
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for term, entry := range entries {
		if _, err := stmt.ExecContext(ctx, doctorID, term, entry.Preferred, entry.Confidence, entry.LastUpdated); err != nil {
			return fmt.Errorf("prefstore: bulk upserting %q: %w", term, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
