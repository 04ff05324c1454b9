package garden

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

type migration struct {
	version int
	sql     string
}

// migrations are applied in order; versions are sequential from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS plants (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	careplan    TEXT NOT NULL DEFAULT '',
	journals    TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plants_user ON plants(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

type plantRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Name      string `db:"name"`
	CarePlan  string `db:"careplan"`
	Journals  string `db:"journals"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r plantRow) plant() Plant {
	return Plant{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		CarePlan:  r.CarePlan,
		Journals:  r.Journals,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations. ":memory:" is accepted for tests.
func OpenSQLite(path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if busyTimeout > 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy timeout: %w", err)
		}
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	current := 0
	var tables int
	if err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'"); err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) FetchPlantsForUser(ctx context.Context, userID string) ([]Plant, error) {
	var rows []plantRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, name, careplan, journals, created_at, updated_at
		 FROM plants WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching plants: %w", err)
	}
	out := make([]Plant, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.plant())
	}
	return out, nil
}

func (s *SQLiteStore) GetPlant(ctx context.Context, id string) (Plant, error) {
	var r plantRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, user_id, name, careplan, journals, created_at, updated_at
		 FROM plants WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Plant{}, ErrNotFound
	}
	if err != nil {
		return Plant{}, fmt.Errorf("getting plant %s: %w", id, err)
	}
	return r.plant(), nil
}

func (s *SQLiteStore) InsertPlant(ctx context.Context, p Plant) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO plants (id, user_id, name, careplan, journals, created_at, updated_at)
		VALUES (:id, :user_id, :name, :careplan, :journals, :created_at, :updated_at)`,
		plantRow{
			ID:        p.ID,
			UserID:    p.UserID,
			Name:      p.Name,
			CarePlan:  p.CarePlan,
			Journals:  p.Journals,
			CreatedAt: p.CreatedAt.UnixMilli(),
			UpdatedAt: p.UpdatedAt.UnixMilli(),
		})
	if err != nil {
		return fmt.Errorf("inserting plant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdatePlant(ctx context.Context, p Plant) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plants SET name = ?, careplan = ?, journals = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.CarePlan, p.Journals, p.UpdatedAt.UnixMilli(), p.ID)
	if err != nil {
		return fmt.Errorf("updating plant %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeletePlant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting plant %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
