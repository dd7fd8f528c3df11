// Package tagger writes the content identifier that lets Photos merge a still
// image and a video into one live photo.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	exif "github.com/barasher/go-exiftool"

	"github.com/bleemesser/icloudimport/media"
	"github.com/bleemesser/icloudimport/util"
)

// ContentIdentifierTag is the exiftool tag name in both the Apple maker notes
// of a still and the QuickTime keys of a video.
const ContentIdentifierTag = "ContentIdentifier"

// ErrReferenceMissing is returned when the maker-notes reference file is absent.
var ErrReferenceMissing = errors.New("maker notes reference file not found")

// Session is the part of a stay-open exiftool process the taggers use.
type Session interface {
	ExtractMetadata(files ...string) []exif.FileMetadata
	WriteMetadata(fileMetadata []exif.FileMetadata)
	Close() error
}

// Option configures an ImageTagger.
type Option func(*ImageTagger)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(runner util.Executor) Option {
	return func(t *ImageTagger) {
		if runner != nil {
			t.exec = runner
		}
	}
}

// WithSession injects an exiftool session instead of starting one.
func WithSession(session Session) Option {
	return func(t *ImageTagger) {
		if session != nil {
			t.session = session
		}
	}
}

// WithLogger sets the tagger's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *ImageTagger) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// ImageTagger writes content identifiers into still images with exiftool.
type ImageTagger struct {
	binary  string
	exec    util.Executor
	session Session
	logger  *slog.Logger
}

// NewImageTagger starts a stay-open exiftool session unless one is injected.
func NewImageTagger(binary string, opts ...Option) (*ImageTagger, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("exiftool binary required")
	}
	t := &ImageTagger{
		binary: binary,
		exec:   util.CommandExecutor{},
		logger: util.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.session == nil {
		opts, err := sessionOptions(binary)
		if err != nil {
			return nil, err
		}
		et, err := exif.NewExiftool(opts...)
		if err != nil {
			return nil, fmt.Errorf("start exiftool: %w", err)
		}
		t.session = et
	}
	return t, nil
}

// sessionOptions resolves binary on PATH, since go-exiftool stats the path it
// is given, and keeps <path>_original when the identifier is written.
func sessionOptions(binary string) ([]func(*exif.Exiftool) error, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("locate exiftool: %w", err)
	}
	return []func(*exif.Exiftool) error{
		exif.SetExiftoolBinaryPath(path),
		exif.BackupOriginal(),
	}, nil
}

func (t *ImageTagger) Close() error {
	return t.session.Close()
}

// TagImage copies the maker notes of reference into path, then writes id as
// its content identifier. The maker notes copy leaves <path>_original behind.
// A path that no longer exists is left alone.
func (t *ImageTagger) TagImage(ctx context.Context, path, reference string, id media.ContentIdentifier) error {
	if !util.Exists(path) {
		return nil
	}
	if reference == "" || !util.Exists(reference) {
		return fmt.Errorf("%w: %q", ErrReferenceMissing, reference)
	}
	t.logger.Info("adding content identifier", "path", path, "content_identifier", id.String())

	if _, err := t.exec.Run(ctx, t.binary, "-tagsfromfile", reference, "-MakerNotes", path); err != nil {
		return fmt.Errorf("copy maker notes: %w", err)
	}

	fm := exif.FileMetadata{File: path, Fields: map[string]interface{}{}}
	fm.SetString(ContentIdentifierTag, id.String())
	batch := []exif.FileMetadata{fm}
	t.session.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("write content identifier: %w", batch[0].Err)
	}
	return nil
}

// ContentIdentifier reads the identifier back from a still or a video.
func ContentIdentifier(session Session, path string) (media.ContentIdentifier, error) {
	results := session.ExtractMetadata(path)
	if len(results) == 0 {
		return "", fmt.Errorf("no metadata for %s", path)
	}
	if results[0].Err != nil {
		return "", results[0].Err
	}
	value, err := results[0].GetString(ContentIdentifierTag)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return media.ContentIdentifier(value), nil
}

// ContentIdentifier reads the identifier back using the tagger's session.
func (t *ImageTagger) ContentIdentifier(path string) (media.ContentIdentifier, error) {
	return ContentIdentifier(t.session, path)
}
