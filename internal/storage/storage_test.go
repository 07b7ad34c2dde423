package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"imagedupes/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testGroups() []*models.DuplicateGroup {
	now := time.Unix(1700000000, 0)
	img1 := &models.ImageInfo{Path: "/b/img1.jpg", Width: 1920, Height: 1080, Format: "jpeg", FileSize: 1024000, ModTime: now, HasExif: true, Score: 2073600}
	img2 := &models.ImageInfo{Path: "/a/img2.png", Width: 800, Height: 600, Format: "png", FileSize: 512000, ModTime: now, Score: 480000}
	img3 := &models.ImageInfo{Path: "/img3.jpg", Width: 100, Height: 100, Format: "jpeg", FileSize: 1000, ModTime: now, Score: 10000}
	img4 := &models.ImageInfo{Path: "/img4.jpg", Width: 200, Height: 200, Format: "jpeg", FileSize: 2000, ModTime: now, Score: 40000}
	img5 := &models.ImageInfo{Path: "/img5.jpg", Width: 200, Height: 200, Format: "jpeg", FileSize: 2000, ModTime: now, Score: 40000}

	return []*models.DuplicateGroup{
		{ID: 1, Images: []*models.ImageInfo{img1, img2}, Keep: img1, Remove: []*models.ImageInfo{img2}},
		// kept image is not the seed
		{ID: 2, Images: []*models.ImageInfo{img3, img4, img5}, Keep: img4, Remove: []*models.ImageInfo{img3, img5}},
	}
}

func TestNewStorage(t *testing.T) {
	store := newTestStorage(t)
	if store.db == nil {
		t.Error("db should not be nil")
	}
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed to create directories: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestSaveGroups_AndGetDuplicateGroups(t *testing.T) {
	store := newTestStorage(t)

	if err := store.SaveGroups(testGroups()); err != nil {
		t.Fatalf("SaveGroups failed: %v", err)
	}

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		t.Fatalf("GetDuplicateGroups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	// cluster order survives, not path order
	g1 := groups[0]
	if g1.ID != 1 || len(g1.Images) != 2 {
		t.Fatalf("group 1 = id %d with %d images", g1.ID, len(g1.Images))
	}
	if g1.Images[0].Path != "/b/img1.jpg" || g1.Images[1].Path != "/a/img2.png" {
		t.Errorf("group 1 order = %s, %s", g1.Images[0].Path, g1.Images[1].Path)
	}
	if g1.Keep.Path != "/b/img1.jpg" || len(g1.Remove) != 1 || g1.Remove[0].Path != "/a/img2.png" {
		t.Errorf("group 1 keep/remove = %s / %v", g1.Keep.Path, g1.Remove)
	}

	img := g1.Images[0]
	if img.Width != 1920 || img.Height != 1080 || img.Format != "jpeg" {
		t.Errorf("metadata = %dx%d %s", img.Width, img.Height, img.Format)
	}
	if !img.HasExif {
		t.Error("HasExif should be true")
	}
	if !img.ModTime.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("mod time = %v", img.ModTime)
	}
	if img.GroupID != 1 || img.Position != 0 || g1.Images[1].Position != 1 {
		t.Errorf("group/position not restored: %d %d %d", img.GroupID, img.Position, g1.Images[1].Position)
	}

	g2 := groups[1]
	if g2.Keep.Path != "/img4.jpg" {
		t.Errorf("group 2 keep = %s, want /img4.jpg", g2.Keep.Path)
	}
	if len(g2.Remove) != 2 || g2.Remove[0].Path != "/img3.jpg" || g2.Remove[1].Path != "/img5.jpg" {
		t.Errorf("group 2 remove = %v", g2.Remove)
	}
}

func TestSaveGroups_ReplacesPreviousRun(t *testing.T) {
	store := newTestStorage(t)

	if err := store.SaveGroups(testGroups()); err != nil {
		t.Fatalf("first SaveGroups failed: %v", err)
	}

	a := &models.ImageInfo{Path: "/x.jpg", Format: "jpeg"}
	b := &models.ImageInfo{Path: "/y.jpg", Format: "jpeg"}
	next := []*models.DuplicateGroup{{ID: 1, Images: []*models.ImageInfo{a, b}, Keep: a, Remove: []*models.ImageInfo{b}}}
	if err := store.SaveGroups(next); err != nil {
		t.Fatalf("second SaveGroups failed: %v", err)
	}

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		t.Fatalf("GetDuplicateGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].Images[0].Path != "/x.jpg" {
		t.Errorf("expected only the new group, got %d groups", len(groups))
	}
}

func TestSaveGroups_Empty(t *testing.T) {
	store := newTestStorage(t)

	if err := store.SaveGroups(testGroups()); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveGroups(nil); err != nil {
		t.Fatalf("SaveGroups(nil) failed: %v", err)
	}

	count, err := store.GetGroupCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestGetImagesByGroupID(t *testing.T) {
	store := newTestStorage(t)
	if err := store.SaveGroups(testGroups()); err != nil {
		t.Fatal(err)
	}

	images, keep, err := store.GetImagesByGroupID(2)
	if err != nil {
		t.Fatalf("GetImagesByGroupID failed: %v", err)
	}
	if len(images) != 3 || keep != 1 {
		t.Errorf("got %d images keep=%d, want 3 images keep=1", len(images), keep)
	}

	images, keep, err = store.GetImagesByGroupID(99)
	if err != nil {
		t.Fatalf("GetImagesByGroupID(99) failed: %v", err)
	}
	if len(images) != 0 || keep != -1 {
		t.Errorf("unknown group: %d images keep=%d", len(images), keep)
	}
}

func TestDeleteImage(t *testing.T) {
	store := newTestStorage(t)
	if err := store.SaveGroups(testGroups()); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteImage("/img3.jpg"); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}
	group, err := store.GetGroup(2)
	if err != nil {
		t.Fatal(err)
	}
	if group == nil || len(group.Images) != 2 || len(group.Remove) != 1 {
		t.Fatalf("group 2 after delete = %+v", group)
	}

	// a group with a single survivor is no longer a duplicate group
	if err := store.DeleteImage("/a/img2.png"); err != nil {
		t.Fatal(err)
	}
	group, err = store.GetGroup(1)
	if err != nil {
		t.Fatal(err)
	}
	if group != nil {
		t.Errorf("group 1 should be gone, got %+v", group)
	}

	count, err := store.GetGroupCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestGetGroup_KeepFallsBackToSeed(t *testing.T) {
	store := newTestStorage(t)
	if err := store.SaveGroups(testGroups()); err != nil {
		t.Fatal(err)
	}

	// removing the kept image leaves no marked keep
	if err := store.DeleteImage("/img4.jpg"); err != nil {
		t.Fatal(err)
	}
	group, err := store.GetGroup(2)
	if err != nil {
		t.Fatal(err)
	}
	if group.Keep.Path != "/img3.jpg" {
		t.Errorf("keep = %s, want seed /img3.jpg", group.Keep.Path)
	}
}

func TestRecordScan_AndHistory(t *testing.T) {
	store := newTestStorage(t)

	first := &ScanRecord{
		Folders:         []string{"/photos", "/backup"},
		Threshold:       95,
		HashSize:        8,
		Algorithm:       "average",
		Strategy:        "greedy",
		TotalImages:     100,
		TotalSkipped:    3,
		TotalGroups:     10,
		TotalDuplicates: 25,
		ScannedAt:       time.Unix(1700000000, 0),
	}
	if err := store.RecordScan(first); err != nil {
		t.Fatalf("RecordScan failed: %v", err)
	}
	if first.ID == uuid.Nil {
		t.Error("RecordScan should assign a scan id")
	}

	id := uuid.New()
	second := &ScanRecord{ID: id, Folders: []string{"/photos"}, Threshold: 90, ScannedAt: time.Unix(1700000100, 0)}
	if err := store.RecordScan(second); err != nil {
		t.Fatalf("RecordScan failed: %v", err)
	}

	history, err := store.GetScanHistory(0)
	if err != nil {
		t.Fatalf("GetScanHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if history[0].ID != id {
		t.Errorf("newest record id = %s, want %s", history[0].ID, id)
	}

	old := history[1]
	if old.ID != first.ID || len(old.Folders) != 2 || old.Folders[1] != "/backup" {
		t.Errorf("record = %+v", old)
	}
	if old.TotalImages != 100 || old.TotalSkipped != 3 || old.TotalGroups != 10 || old.TotalDuplicates != 25 {
		t.Errorf("stats = (%d, %d, %d, %d)", old.TotalImages, old.TotalSkipped, old.TotalGroups, old.TotalDuplicates)
	}
	if old.Strategy != "greedy" || old.Algorithm != "average" || old.HashSize != 8 || old.Threshold != 95 {
		t.Errorf("parameters = %+v", old)
	}

	last, err := store.LastScan()
	if err != nil {
		t.Fatalf("LastScan failed: %v", err)
	}
	if last.ID != id {
		t.Errorf("LastScan id = %s, want %s", last.ID, id)
	}

	limited, err := store.GetScanHistory(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d records", len(limited))
	}
}

func TestLastScan_Empty(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.LastScan(); !errors.Is(err, ErrNoScans) {
		t.Errorf("LastScan error = %v, want ErrNoScans", err)
	}
}

func TestMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage failed: %v", err)
	}

	if version := store.getSchemaVersion(); version != schemaVersion {
		t.Errorf("schema version = %d, want %d", version, schemaVersion)
	}
	for _, col := range []struct{ table, column string }{
		{"images", "position"},
		{"images", "keep"},
		{"scan_history", "scan_id"},
		{"scan_history", "total_skipped"},
	} {
		if !store.columnExists(col.table, col.column) {
			t.Errorf("%s.%s should exist after migrations", col.table, col.column)
		}
	}
	if store.columnExists("images", "hash") {
		t.Error("fingerprints must not be stored")
	}
	store.Close()

	// Reopen - should not fail
	store2, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("second NewStorage failed: %v", err)
	}
	defer store2.Close()

	if version := store2.getSchemaVersion(); version != schemaVersion {
		t.Errorf("schema version after reopen = %d, want %d", version, schemaVersion)
	}
}

func TestMigrations_FromVersion1(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	// lay down a version 1 database by hand
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP);
		INSERT INTO schema_version (version) VALUES (1);
		CREATE TABLE images (
			id INTEGER PRIMARY KEY AUTOINCREMENT, path TEXT UNIQUE NOT NULL,
			width INTEGER NOT NULL, height INTEGER NOT NULL, format TEXT NOT NULL,
			file_size INTEGER NOT NULL, mod_time INTEGER NOT NULL, has_exif INTEGER DEFAULT 0,
			score REAL NOT NULL, group_id INTEGER DEFAULT 0, created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE scan_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT, folders TEXT NOT NULL, scanned_at INTEGER NOT NULL,
			total_images INTEGER NOT NULL, total_groups INTEGER NOT NULL, total_duplicates INTEGER NOT NULL
		);
		INSERT INTO scan_history (folders, scanned_at, total_images, total_groups, total_duplicates)
		VALUES ('/old', 1600000000000000000, 5, 1, 1);
	`)
	if err != nil {
		t.Fatalf("failed to create v1 schema: %v", err)
	}
	db.Close()

	store, err := NewStorage(dbPath)
	if err != nil {
		t.Fatalf("NewStorage on v1 database failed: %v", err)
	}
	defer store.Close()

	if version := store.getSchemaVersion(); version != schemaVersion {
		t.Errorf("schema version = %d, want %d", version, schemaVersion)
	}

	history, err := store.GetScanHistory(0)
	if err != nil {
		t.Fatalf("GetScanHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != uuid.Nil || history[0].Folders[0] != "/old" {
		t.Errorf("legacy history = %+v", history)
	}

	if err := store.SaveGroups(testGroups()); err != nil {
		t.Fatalf("SaveGroups after migration failed: %v", err)
	}
}
