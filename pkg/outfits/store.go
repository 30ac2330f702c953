// Package outfits persists user-confirmed recommendations and names them.
package outfits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/stylist/pkg/models"
)

// ErrNotFound is returned when a saved outfit does not exist.
var ErrNotFound = errors.New("saved outfit not found")

// Store is a SQLite-backed saved outfit table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const createOutfitsTable = `
CREATE TABLE IF NOT EXISTS saved_outfits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	gender TEXT NOT NULL,
	top_id INTEGER,
	bottom_id INTEGER,
	additional_ids TEXT NOT NULL DEFAULT '[]',
	original_request TEXT NOT NULL DEFAULT '',
	outfit_data TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saved_outfits_time ON saved_outfits(created_at);
`

// NewStore opens the database at dbPath and runs auto-migration.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open outfits db: %w", err)
	}
	if _, err := db.Exec(createOutfitsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate outfits db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Insert stores o and returns it with ID and CreatedAt set.
func (s *Store) Insert(ctx context.Context, o models.SavedOutfit) (models.SavedOutfit, error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}
	if o.AdditionalIDs == nil {
		o.AdditionalIDs = []int64{}
	}
	additional, err := json.Marshal(o.AdditionalIDs)
	if err != nil {
		return o, fmt.Errorf("encode additional ids: %w", err)
	}
	data := o.OutfitData
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_outfits (name, description, gender, top_id, bottom_id, additional_ids, original_request, outfit_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Name, o.Description, o.Gender, nullable(o.TopID), nullable(o.BottomID),
		string(additional), o.OriginalRequest, string(data), o.CreatedAt.UnixNano(),
	)
	if err != nil {
		return o, fmt.Errorf("insert saved outfit: %w", err)
	}
	if o.ID, err = res.LastInsertId(); err != nil {
		return o, fmt.Errorf("saved outfit id: %w", err)
	}
	o.OutfitData = data
	return o, nil
}

// List returns saved outfits, newest first. A limit of 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]models.SavedOutfit, error) {
	query := `SELECT id, name, description, gender, top_id, bottom_id, additional_ids, original_request, outfit_data, created_at
		FROM saved_outfits ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list saved outfits: %w", err)
	}
	defer rows.Close()

	outfits := []models.SavedOutfit{}
	for rows.Next() {
		o, err := scanOutfit(rows)
		if err != nil {
			return nil, err
		}
		outfits = append(outfits, o)
	}
	return outfits, rows.Err()
}

// Get returns one saved outfit.
func (s *Store) Get(ctx context.Context, id int64) (models.SavedOutfit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, gender, top_id, bottom_id, additional_ids, original_request, outfit_data, created_at
		 FROM saved_outfits WHERE id = ?`, id)
	o, err := scanOutfit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

// Delete removes a saved outfit.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_outfits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete saved outfit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete saved outfit: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutfit(sc scanner) (models.SavedOutfit, error) {
	var (
		o          models.SavedOutfit
		top        sql.NullInt64
		bottom     sql.NullInt64
		additional string
		data       string
		createdAt  int64
	)
	if err := sc.Scan(&o.ID, &o.Name, &o.Description, &o.Gender, &top, &bottom,
		&additional, &o.OriginalRequest, &data, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, err
		}
		return o, fmt.Errorf("scan saved outfit: %w", err)
	}
	if top.Valid {
		o.TopID = &top.Int64
	}
	if bottom.Valid {
		o.BottomID = &bottom.Int64
	}
	if err := json.Unmarshal([]byte(additional), &o.AdditionalIDs); err != nil || o.AdditionalIDs == nil {
		o.AdditionalIDs = []int64{}
	}
	o.OutfitData = json.RawMessage(data)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	return o, nil
}

func nullable(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
