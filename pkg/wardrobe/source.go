package wardrobe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/stylist/pkg/models"
)

// Filter narrows the wardrobe before prompting. Empty fields match anything.
type Filter struct {
	Season   string `json:"season,omitempty"`
	Style    string `json:"style,omitempty"`
	Category string `json:"category,omitempty"`
}

// Match reports whether an item passes the filter. Items tagged
// "all-season" match any season.
func (f Filter) Match(it models.ClothingItemRef) bool {
	if f.Season != "" && !strings.EqualFold(it.Season, f.Season) && !strings.EqualFold(it.Season, "all-season") {
		return false
	}
	if f.Style != "" && !strings.EqualFold(it.Style, f.Style) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(string(it.Category), f.Category) {
		return false
	}
	return true
}

// Source loads a fresh wardrobe snapshot on every call.
type Source interface {
	Items(ctx context.Context, f Filter) ([]models.ClothingItemRef, error)
}

// SQLiteSource reads the clothing_items table. It never writes.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens a wardrobe database in read-only mode.
func OpenSQLite(dbPath string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open wardrobe db: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// NewSQLiteSource wraps an existing connection.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// Items returns matching items ordered by id.
func (s *SQLiteSource) Items(ctx context.Context, f Filter) ([]models.ClothingItemRef, error) {
	q := `SELECT id, COALESCE(name, ''), category, COALESCE(image_path, ''),
		COALESCE(clothing_type, ''), COALESCE(color, ''), COALESCE(secondary_color, ''),
		COALESCE(season, ''), COALESCE(style, ''), COALESCE(pattern, ''),
		COALESCE(material, ''), COALESCE(fit, ''), COALESCE(tags, '')
		FROM clothing_items WHERE 1=1`
	var args []any
	if f.Category != "" {
		q += ` AND lower(category) = lower(?)`
		args = append(args, f.Category)
	}
	if f.Style != "" {
		q += ` AND lower(style) = lower(?)`
		args = append(args, f.Style)
	}
	if f.Season != "" {
		q += ` AND (lower(season) = lower(?) OR lower(season) = 'all-season')`
		args = append(args, f.Season)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query wardrobe: %w", err)
	}
	defer rows.Close()

	var items []models.ClothingItemRef
	for rows.Next() {
		var it models.ClothingItemRef
		var tags string
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.ImagePath,
			&it.ClothingType, &it.Color, &it.SecondaryColor,
			&it.Season, &it.Style, &it.Pattern,
			&it.Material, &it.Fit, &tags); err != nil {
			return nil, fmt.Errorf("scan wardrobe: %w", err)
		}
		if tags != "" {
			// Tags are a JSON array; a malformed column is ignored.
			_ = json.Unmarshal([]byte(tags), &it.Tags)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Close releases the database connection.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// FileSource reads a YAML wardrobe file:
//
//	items:
//	  - id: 1
//	    category: shirt
//	    color: red
type FileSource struct {
	path string
}

// NewFileSource returns a source backed by the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type wardrobeFile struct {
	Items []models.ClothingItemRef `yaml:"items"`
}

// Items re-reads the file and returns matching items in file order.
func (s *FileSource) Items(ctx context.Context, f Filter) ([]models.ClothingItemRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read wardrobe file: %w", err)
	}
	var wf wardrobeFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse wardrobe file: %w", err)
	}
	items := wf.Items[:0]
	for _, it := range wf.Items {
		if f.Match(it) {
			items = append(items, it)
		}
	}
	return items, nil
}

// Static is an in-memory Source, used by tests and demo mode.
type Static []models.ClothingItemRef

// Items returns matching items in order.
func (s Static) Items(_ context.Context, f Filter) ([]models.ClothingItemRef, error) {
	var items []models.ClothingItemRef
	for _, it := range s {
		if f.Match(it) {
			items = append(items, it)
		}
	}
	return items, nil
}
