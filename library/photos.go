// Package library implements the photo-library collaborators used by the
// classification engine: Photos.app through AppleScript, and a SQLite-backed
// local library for hosts without Photos.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bleemesser/icloudimport/media"
	"github.com/bleemesser/icloudimport/util"
)

// ErrUnexpectedOutput is returned when a library script prints something the
// adapter does not recognise.
var ErrUnexpectedOutput = errors.New("unexpected script output")

// Option configures the Photos adapter.
type Option func(*Photos)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec util.Executor) Option {
	return func(p *Photos) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithLogger sets the adapter's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Photos) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Photos drives Photos.app through osascript.
type Photos struct {
	binary string
	exec   util.Executor
	logger *slog.Logger
}

// NewPhotos constructs the Photos adapter.
func NewPhotos(binary string, opts ...Option) (*Photos, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("osascript binary required")
	}
	p := &Photos{
		binary: binary,
		exec:   util.CommandExecutor{},
		logger: util.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Photos) run(ctx context.Context, script string) (string, error) {
	return p.exec.Run(ctx, p.binary, "-e", script)
}

// EnsureAlbum creates the album unless it already exists.
func (p *Photos) EnsureAlbum(ctx context.Context, name string) error {
	if _, err := p.run(ctx, ensureAlbumScript(name)); err != nil {
		return fmt.Errorf("ensure album: %w", err)
	}
	return nil
}

// AssignToAlbum adds every media item whose filename contains stem.
func (p *Photos) AssignToAlbum(ctx context.Context, stem, album string) error {
	if err := p.EnsureAlbum(ctx, album); err != nil {
		return err
	}
	out, err := p.run(ctx, assignScript(stem, album))
	if err != nil {
		return fmt.Errorf("add to album: %w", err)
	}
	p.logger.Debug("album assignment", "stem", stem, "album", album, "matched", out)
	return nil
}

// Query reports whether the library holds an item matching stem.
func (p *Photos) Query(ctx context.Context, stem string) (media.MatchResult, error) {
	out, err := p.run(ctx, queryScript(stem))
	if err != nil {
		return media.NotFound, fmt.Errorf("query library: %w", err)
	}
	return parseQuery(out)
}

func parseQuery(out string) (media.MatchResult, error) {
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "not found":
		return media.NotFound, nil
	case "found, liked: true":
		return media.FoundFavorite, nil
	case "found, liked: false":
		return media.FoundNotFavorite, nil
	default:
		return media.NotFound, fmt.Errorf("%w: %q", ErrUnexpectedOutput, out)
	}
}

// ImportSingle imports path and removes it once Photos accepted it.
func (p *Photos) ImportSingle(ctx context.Context, path, album string) bool {
	return p.importFiles(ctx, album, path)
}

// ImportPair imports a still and its video in a single Photos import so they
// are merged into one live photo.
func (p *Photos) ImportPair(ctx context.Context, still, video, album string) bool {
	return p.importFiles(ctx, album, still, video)
}

func (p *Photos) importFiles(ctx context.Context, album string, paths ...string) bool {
	if err := p.EnsureAlbum(ctx, album); err != nil {
		p.logger.Warn("import album unavailable", "album", album, "error", err)
		return false
	}
	if _, err := p.run(ctx, importScript(album, paths...)); err != nil {
		p.logger.Warn("photos import failed", "paths", paths, "error", err)
		return false
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("imported file could not be removed", "path", path, "error", err)
		}
	}
	return true
}
