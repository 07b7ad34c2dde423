package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"imagedupes/internal/models"
)

// ScanRecord is one row of scan history
type ScanRecord struct {
	ID              uuid.UUID
	Folders         []string
	Threshold       int
	HashSize        int
	Algorithm       string
	Strategy        string
	TotalImages     int
	TotalSkipped    int
	TotalGroups     int
	TotalDuplicates int
	ScannedAt       time.Time
}

// Storage keeps the duplicate groups of the last scan and the scan history.
// Fingerprints are never written; every scan recomputes them.
type Storage struct {
	db *sql.DB
}

// NewStorage opens (and creates if needed) the database at dbPath
func NewStorage(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

const schemaVersion = 3

// migrations are applied in order on top of the base schema. A migration whose
// marker column already exists is recorded without being executed.
var migrations = []struct {
	version     int
	description string
	table       string
	column      string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
	},
	{
		version:     2,
		description: "Record cluster order and kept image",
		table:       "images",
		column:      "position",
		up: `
			ALTER TABLE images ADD COLUMN position INTEGER DEFAULT 0;
			ALTER TABLE images ADD COLUMN keep INTEGER DEFAULT 0;
		`,
	},
	{
		version:     3,
		description: "Add scan parameters to history",
		table:       "scan_history",
		column:      "scan_id",
		up: `
			ALTER TABLE scan_history ADD COLUMN scan_id TEXT DEFAULT '';
			ALTER TABLE scan_history ADD COLUMN threshold INTEGER DEFAULT 0;
			ALTER TABLE scan_history ADD COLUMN hash_size INTEGER DEFAULT 0;
			ALTER TABLE scan_history ADD COLUMN algorithm TEXT DEFAULT '';
			ALTER TABLE scan_history ADD COLUMN strategy TEXT DEFAULT '';
			ALTER TABLE scan_history ADD COLUMN total_skipped INTEGER DEFAULT 0;
			CREATE UNIQUE INDEX IF NOT EXISTS idx_scan_history_scan_id ON scan_history(scan_id) WHERE scan_id != '';
		`,
	},
}

func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT UNIQUE NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		format TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		has_exif INTEGER DEFAULT 0,
		score REAL NOT NULL,
		group_id INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_images_group_id ON images(group_id);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folders TEXT NOT NULL,
		scanned_at INTEGER NOT NULL,
		total_images INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		total_duplicates INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Storage) migrate() error {
	current := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.up == "" || s.columnExists(m.table, m.column) {
			if err := s.setSchemaVersion(m.version); err != nil {
				return err
			}
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}
		if err := s.setSchemaVersion(m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return nil
}

func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveGroups replaces the stored groups with groups. Image order within a
// group is kept in the position column.
func (s *Storage) SaveGroups(groups []*models.DuplicateGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM images"); err != nil {
		return fmt.Errorf("failed to clear images: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO images (path, width, height, format, file_size, mod_time, has_exif, score, group_id, position, keep)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, group := range groups {
		for pos, img := range group.Images {
			_, err := stmt.Exec(
				img.Path,
				img.Width,
				img.Height,
				img.Format,
				img.FileSize,
				img.ModTime.UnixNano(),
				boolToInt(img.HasExif),
				img.Score,
				group.ID,
				pos,
				boolToInt(group.Keep != nil && group.Keep.Path == img.Path),
			)
			if err != nil {
				return fmt.Errorf("failed to insert image %s: %w", img.Path, err)
			}
		}
	}

	return tx.Commit()
}

const imageColumns = `id, path, width, height, format, file_size, mod_time, has_exif, score, group_id, position, keep`

// GetImagesByGroupID returns the images of a group in cluster order. The
// second return value is the index of the kept image, or -1 if none is marked.
func (s *Storage) GetImagesByGroupID(groupID int) ([]*models.ImageInfo, int, error) {
	rows, err := s.db.Query(`
		SELECT `+imageColumns+`
		FROM images
		WHERE group_id = ?
		ORDER BY position, path
	`, groupID)
	if err != nil {
		return nil, -1, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var (
		images []*models.ImageInfo
		keep   = -1
	)
	for rows.Next() {
		img := &models.ImageInfo{}
		var (
			modTime    int64
			hasExifInt int
			keepInt    int
		)
		err := rows.Scan(
			&img.ID,
			&img.Path,
			&img.Width,
			&img.Height,
			&img.Format,
			&img.FileSize,
			&modTime,
			&hasExifInt,
			&img.Score,
			&img.GroupID,
			&img.Position,
			&keepInt,
		)
		if err != nil {
			return nil, -1, fmt.Errorf("failed to scan row: %w", err)
		}
		img.HasExif = hasExifInt == 1
		img.ModTime = time.Unix(0, modTime)
		if keepInt == 1 && keep < 0 {
			keep = len(images)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, -1, fmt.Errorf("failed to read images: %w", err)
	}

	return images, keep, nil
}

// GetDuplicateGroups returns all stored groups that still have two or more
// images, ordered by group id.
func (s *Storage) GetDuplicateGroups() ([]*models.DuplicateGroup, error) {
	rows, err := s.db.Query("SELECT DISTINCT group_id FROM images WHERE group_id > 0 ORDER BY group_id")
	if err != nil {
		return nil, err
	}

	var groupIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		groupIDs = append(groupIDs, id)
	}
	rows.Close()

	var groups []*models.DuplicateGroup
	for _, id := range groupIDs {
		group, err := s.GetGroup(id)
		if err != nil {
			return nil, err
		}
		if group != nil {
			groups = append(groups, group)
		}
	}

	return groups, nil
}

// GetGroup loads a single group. It returns nil when fewer than two images
// remain in it.
func (s *Storage) GetGroup(id int) (*models.DuplicateGroup, error) {
	images, keep, err := s.GetImagesByGroupID(id)
	if err != nil {
		return nil, err
	}
	if len(images) < 2 {
		return nil, nil
	}
	if keep < 0 {
		keep = 0
	}

	group := &models.DuplicateGroup{
		ID:     id,
		Images: images,
		Keep:   images[keep],
	}
	for i, img := range images {
		if i != keep {
			group.Remove = append(group.Remove, img)
		}
	}
	return group, nil
}

// DeleteImage removes an image from the database
func (s *Storage) DeleteImage(path string) error {
	_, err := s.db.Exec("DELETE FROM images WHERE path = ?", path)
	return err
}

// GetGroupCount returns the number of duplicate groups
func (s *Storage) GetGroupCount() (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT group_id FROM images WHERE group_id > 0
			GROUP BY group_id HAVING COUNT(*) > 1
		)
	`).Scan(&count)
	return count, err
}

// RecordScan appends a scan to the history. A zero ID or time is filled in.
func (s *Storage) RecordScan(rec *ScanRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO scan_history (scan_id, folders, threshold, hash_size, algorithm, strategy,
			total_images, total_skipped, total_groups, total_duplicates, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID.String(),
		strings.Join(rec.Folders, "\n"),
		rec.Threshold,
		rec.HashSize,
		rec.Algorithm,
		rec.Strategy,
		rec.TotalImages,
		rec.TotalSkipped,
		rec.TotalGroups,
		rec.TotalDuplicates,
		rec.ScannedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}

// ErrNoScans is returned by LastScan when the history is empty
var ErrNoScans = errors.New("no scans recorded")

// GetScanHistory returns up to limit scans, newest first. limit <= 0 returns all.
func (s *Storage) GetScanHistory(limit int) ([]*ScanRecord, error) {
	query := `
		SELECT scan_id, folders, threshold, hash_size, algorithm, strategy,
			total_images, total_skipped, total_groups, total_duplicates, scanned_at
		FROM scan_history
		ORDER BY scanned_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan history: %w", err)
	}
	defer rows.Close()

	var records []*ScanRecord
	for rows.Next() {
		rec := &ScanRecord{}
		var (
			scanID    string
			folders   string
			scannedAt int64
		)
		err := rows.Scan(
			&scanID,
			&folders,
			&rec.Threshold,
			&rec.HashSize,
			&rec.Algorithm,
			&rec.Strategy,
			&rec.TotalImages,
			&rec.TotalSkipped,
			&rec.TotalGroups,
			&rec.TotalDuplicates,
			&scannedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		// rows written before scan ids existed keep a nil id
		if id, err := uuid.Parse(scanID); err == nil {
			rec.ID = id
		}
		if folders != "" {
			rec.Folders = strings.Split(folders, "\n")
		}
		rec.ScannedAt = time.Unix(0, scannedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LastScan returns the most recent scan
func (s *Storage) LastScan() (*ScanRecord, error) {
	records, err := s.GetScanHistory(1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoScans
	}
	return records[0], nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
