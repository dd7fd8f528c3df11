package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/bleemesser/icloudimport/media"
	"github.com/bleemesser/icloudimport/util"
)

const dbName = "library.db"

// use a sqlite database to stand in for the photo library on hosts
// without Photos.app
type Local struct {
	db     *sql.DB
	root   string
	logger *slog.Logger
}

// LocalExists reports whether dir already holds a local library.
func LocalExists(dir string) bool {
	return util.Exists(filepath.Join(dir, dbName))
}

// CreateLocal creates a new library in the specified directory
func CreateLocal(dir string, logger *slog.Logger) (*Local, error) {
	// ensure the directory exists, if not create it
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// if the library already exists, return an error
	if LocalExists(dir) {
		return nil, fmt.Errorf("library already exists in %s", dir)
	}

	lib, err := open(dir, logger)
	if err != nil {
		return nil, err
	}

	// tables:
	// 	- albums: id, name string unique
	// 	- assets: id, filename string, relpath string, filetype string, created timestamp, hash string, favorite bool, pair_id
	// 	- album_items: album_id, asset_id (one membership per pair)
	statements := []string{
		`CREATE TABLE IF NOT EXISTS albums (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			relpath TEXT NOT NULL,
			filetype TEXT,
			created TIMESTAMP,
			hash TEXT UNIQUE,
			favorite INTEGER NOT NULL DEFAULT 0,
			pair_id INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS album_items (
			album_id INTEGER NOT NULL,
			asset_id INTEGER NOT NULL,
			PRIMARY KEY (album_id, asset_id),
			FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE,
			FOREIGN KEY (asset_id) REFERENCES assets(id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range statements {
		if _, err := lib.db.Exec(stmt); err != nil {
			lib.Close()
			return nil, err
		}
	}

	return lib, nil
}

// OpenLocal opens an existing library.
func OpenLocal(dir string, logger *slog.Logger) (*Local, error) {
	if !LocalExists(dir) {
		return nil, fmt.Errorf("no library found in %s", dir)
	}
	return open(dir, logger)
}

func open(dir string, logger *slog.Logger) (*Local, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, dbName))
	if err != nil {
		return nil, err
	}
	// one writer; keeps sqlite from reporting SQLITE_BUSY between statements
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if logger == nil {
		logger = util.DiscardLogger()
	}
	return &Local{db: db, root: dir, logger: logger}, nil
}

func (lib *Local) Close() error {
	return lib.db.Close()
}

func (lib *Local) Root() string {
	return lib.root
}

// EnsureAlbum creates the album unless it already exists.
func (lib *Local) EnsureAlbum(ctx context.Context, name string) error {
	_, err := lib.db.ExecContext(ctx, "INSERT OR IGNORE INTO albums (name) VALUES (?)", name)
	return err
}

// AssignToAlbum adds every asset whose filename contains stem, ignoring case.
func (lib *Local) AssignToAlbum(ctx context.Context, stem, album string) error {
	if err := lib.EnsureAlbum(ctx, album); err != nil {
		return err
	}
	_, err := lib.db.ExecContext(ctx, `INSERT OR IGNORE INTO album_items (album_id, asset_id)
		SELECT al.id, a.id FROM albums al, assets a
		WHERE al.name = ? AND instr(lower(a.filename), lower(?)) > 0`, album, stem)
	return err
}

// Query reports whether an asset matches stem and whether any match is a favorite.
func (lib *Local) Query(ctx context.Context, stem string) (media.MatchResult, error) {
	var count int
	var favorite sql.NullInt64
	err := lib.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(favorite) FROM assets WHERE instr(lower(filename), lower(?)) > 0", stem,
	).Scan(&count, &favorite)
	if err != nil {
		return media.NotFound, err
	}
	switch {
	case count == 0:
		return media.NotFound, nil
	case favorite.Valid && favorite.Int64 > 0:
		return media.FoundFavorite, nil
	default:
		return media.FoundNotFavorite, nil
	}
}

// ImportSingle copies path into the library, skipping known content, and
// removes the source on success.
func (lib *Local) ImportSingle(ctx context.Context, path, album string) bool {
	if err := lib.importFiles(ctx, album, path); err != nil {
		lib.logger.Warn("local import failed", "path", path, "error", err)
		return false
	}
	return true
}

// ImportPair imports a still and its video in one transaction and links them.
func (lib *Local) ImportPair(ctx context.Context, still, video, album string) bool {
	if err := lib.importFiles(ctx, album, still, video); err != nil {
		lib.logger.Warn("local pair import failed", "still", still, "video", video, "error", err)
		return false
	}
	return true
}

type stagedFile struct {
	source   string
	filename string
	relpath  string
	filetype string
	created  time.Time
	hash     string
	dest     string // empty when the content is already in the library
}

// stage hashes path and, unless the library already holds the same content,
// copies it to <root>/<YYYY>/<MM-DD>/ by capture date.
func (lib *Local) stage(ctx context.Context, path string) (stagedFile, error) {
	p := stagedFile{source: path}
	hash, err := util.HashFile(path)
	if err != nil {
		return p, err
	}
	p.hash = hash

	var exists bool
	err = lib.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM assets WHERE hash = ?)", hash).Scan(&exists)
	if err != nil {
		return p, err
	}
	if exists {
		lib.logger.Info("skipping duplicate", "path", path)
		return p, nil
	}

	created, err := util.CaptureTime(path)
	if err != nil {
		return p, err
	}
	p.created = created
	p.relpath = created.Format("2006/01-02/")
	p.filename = uniqueName(filepath.Join(lib.root, p.relpath), filepath.Base(path))
	p.filetype = strings.ToUpper(strings.TrimPrefix(filepath.Ext(p.filename), "."))

	dest := filepath.Join(lib.root, p.relpath, p.filename)
	if err := util.Copy(path, dest); err != nil {
		return p, err
	}
	p.dest = dest
	return p, nil
}

func uniqueName(dir, name string) string {
	candidate := name
	stem := util.Stem(name)
	ext := filepath.Ext(name)
	for i := 1; util.Exists(filepath.Join(dir, candidate)); i++ {
		candidate = stem + "-" + strconv.Itoa(i) + ext
	}
	return candidate
}

func (lib *Local) importFiles(ctx context.Context, album string, paths ...string) (err error) {
	if err := lib.EnsureAlbum(ctx, album); err != nil {
		return err
	}

	var pending []stagedFile
	defer func() {
		if err == nil {
			return
		}
		for _, p := range pending {
			if p.dest != "" {
				os.Remove(p.dest)
			}
		}
	}()

	for _, path := range paths {
		p, err := lib.stage(ctx, path)
		if err != nil {
			return err
		}
		pending = append(pending, p)
	}

	tx, err := lib.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var albumID int64
	if err = tx.QueryRowContext(ctx, "SELECT id FROM albums WHERE name = ?", album).Scan(&albumID); err != nil {
		return err
	}

	var pairID sql.NullInt64
	for i := range pending {
		p := &pending[i]
		if p.dest == "" {
			// duplicate content, already in the library
			continue
		}
		result, err := tx.ExecContext(ctx,
			"INSERT INTO assets (filename, relpath, filetype, created, hash, pair_id) VALUES (?, ?, ?, ?, ?, ?)",
			p.filename, p.relpath, p.filetype, p.created, p.hash, pairID)
		if err != nil {
			return err
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		if len(paths) > 1 && !pairID.Valid {
			pairID = sql.NullInt64{Int64: id, Valid: true}
			if _, err = tx.ExecContext(ctx, "UPDATE assets SET pair_id = ? WHERE id = ?", id, id); err != nil {
				return err
			}
		}
		if _, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO album_items (album_id, asset_id) VALUES (?, ?)", albumID, id); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	for _, p := range pending {
		if rmErr := os.Remove(p.source); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			lib.logger.Warn("imported file could not be removed", "path", p.source, "error", rmErr)
		}
	}
	return nil
}
