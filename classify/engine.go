// Package classify decides, for every photo and video in a folder, whether it
// already exists in the library, whether it is a favorite, and whether it
// should be merged with its companion video into a live photo before import.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bleemesser/icloudimport/media"
	"github.com/bleemesser/icloudimport/util"
)

// Library is the photo library the engine reconciles against.
type Library interface {
	EnsureAlbum(ctx context.Context, name string) error
	// AssignToAlbum adds every library item whose filename contains stem.
	// No matches is not an error.
	AssignToAlbum(ctx context.Context, stem, album string) error
	Query(ctx context.Context, stem string) (media.MatchResult, error)
	// ImportSingle and ImportPair skip duplicates and delete the source
	// file(s) on success. Failures are reported as false.
	ImportSingle(ctx context.Context, path, album string) bool
	ImportPair(ctx context.Context, still, video, album string) bool
}

// Tagger writes content identifiers into media files.
type Tagger interface {
	TagImage(ctx context.Context, path, reference string, id media.ContentIdentifier) error
	// TagVideo blocks until the identifier is written or the attempt failed.
	TagVideo(ctx context.Context, path string, id media.ContentIdentifier) error
}

// Progress is the subset of a progress bar the engine drives.
type Progress interface {
	Add(n int) error
	Finish() error
}

// ProgressFunc builds a progress indicator for one pass.
type ProgressFunc func(total int, description string) Progress

// Options configures an Engine.
type Options struct {
	CheckLibrary  bool
	ReferenceFile string
	NewIdentifier func() media.ContentIdentifier
	Logger        *slog.Logger
	Progress      ProgressFunc
}

// Engine runs the two-pass classification over a folder.
type Engine struct {
	library   Library
	tagger    Tagger
	check     bool
	reference string
	newID     func() media.ContentIdentifier
	logger    *slog.Logger
	progress  ProgressFunc
	outcomes  []media.Outcome
}

// New constructs an Engine.
func New(library Library, tagger Tagger, opts Options) (*Engine, error) {
	if library == nil {
		return nil, errors.New("library required")
	}
	if tagger == nil {
		return nil, errors.New("tagger required")
	}
	e := &Engine{
		library:   library,
		tagger:    tagger,
		check:     opts.CheckLibrary,
		reference: opts.ReferenceFile,
		newID:     opts.NewIdentifier,
		logger:    opts.Logger,
		progress:  opts.Progress,
	}
	if e.newID == nil {
		e.newID = media.NewContentIdentifier
	}
	if e.logger == nil {
		e.logger = util.DiscardLogger()
	}
	if e.progress == nil {
		e.progress = func(int, string) Progress { return noProgress{} }
	}
	return e, nil
}

// Run processes every still image in folder, then every mp4 video. Each pass
// reads the folder listing afresh. The returned outcomes cover every file the
// engine touched, including the one that aborted the run.
func (e *Engine) Run(ctx context.Context, folder string) ([]media.Outcome, error) {
	e.outcomes = nil
	e.logger.Info("processing folder", "folder", folder, "check_library", e.check)

	if err := e.library.EnsureAlbum(ctx, media.AlbumImported); err != nil {
		return nil, fmt.Errorf("ensure album %q: %w", media.AlbumImported, err)
	}

	if err := e.stillPass(ctx, folder); err != nil {
		return e.outcomes, err
	}
	if err := e.videoPass(ctx, folder); err != nil {
		return e.outcomes, err
	}
	return e.outcomes, nil
}

func (e *Engine) stillPass(ctx context.Context, folder string) error {
	names, err := util.ListFolder(folder)
	if err != nil {
		return fmt.Errorf("list folder: %w", err)
	}
	stills := util.Stills(folder, names)
	bar := e.progress(len(stills), "Processing photos")
	defer bar.Finish()

	for _, item := range stills {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := media.Outcome{Name: item.Name, Pass: media.PassStill}
		err := e.processStill(ctx, item, &out)
		if err != nil {
			out.Err = err.Error()
		}
		e.outcomes = append(e.outcomes, out)
		_ = bar.Add(1)
		if err != nil {
			return fmt.Errorf("%s: %w", item.Name, err)
		}
	}
	return nil
}

func (e *Engine) processStill(ctx context.Context, item media.MediaItem, out *media.Outcome) error {
	if !util.Exists(item.Path()) {
		e.logger.Info("file no longer present, skipping", "file", item.Name)
		out.Skipped = true
		return nil
	}
	e.logger.Info("processing file", "file", item.Name)

	match := media.NotFound
	if e.check {
		var err error
		match, err = e.library.Query(ctx, item.Stem)
		out.Queried = true
		if err != nil {
			e.logger.Warn("library query failed, leaving file in place", "file", item.Name, "error", err)
			out.Skipped = true
			out.Err = err.Error()
			return nil
		}
		e.logger.Info("library lookup", "file", item.Stem, "result", match.String())
	}
	out.Match = match

	switch match {
	case media.NotFound:
		if err := e.pair(ctx, item, out); err != nil {
			return err
		}
		return e.assign(ctx, item.Stem, media.AlbumNew, out)
	case media.FoundFavorite:
		if err := e.assign(ctx, item.Stem, media.AlbumDuplicates, out); err != nil {
			return err
		}
		if err := e.pair(ctx, item, out); err != nil {
			return err
		}
		return e.assign(ctx, item.Stem, media.AlbumFavorite, out)
	case media.FoundNotFavorite:
		if err := e.assign(ctx, item.Stem, media.AlbumDuplicates, out); err != nil {
			return err
		}
		return e.pair(ctx, item, out)
	default:
		return fmt.Errorf("unexpected match result %d", match)
	}
}

func (e *Engine) videoPass(ctx context.Context, folder string) error {
	names, err := util.ListFolder(folder)
	if err != nil {
		return fmt.Errorf("list folder: %w", err)
	}
	videos := util.Videos(folder, names)
	bar := e.progress(len(videos), "Processing videos")
	defer bar.Finish()

	for _, item := range videos {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := media.Outcome{Name: item.Name, Pass: media.PassVideo}
		err := e.processVideo(ctx, item, &out)
		if err != nil {
			out.Err = err.Error()
		}
		e.outcomes = append(e.outcomes, out)
		_ = bar.Add(1)
		if err != nil {
			return fmt.Errorf("%s: %w", item.Name, err)
		}
	}
	return nil
}

func (e *Engine) processVideo(ctx context.Context, item media.MediaItem, out *media.Outcome) error {
	e.logger.Info("processing video", "file", item.Name)
	if err := e.assign(ctx, item.Stem, media.AlbumDuplicates, out); err != nil {
		return err
	}

	out.Imported = e.library.ImportSingle(ctx, item.Path(), media.AlbumImported)
	if !out.Imported {
		e.logger.Warn("import failed, file left in place", "file", item.Name)
	}

	match, err := e.library.Query(ctx, item.Stem)
	out.Queried = true
	if err != nil {
		e.logger.Warn("library query failed", "file", item.Stem, "error", err)
		match = media.NotFound
	}
	out.Match = match

	if match == media.FoundFavorite {
		return e.assign(ctx, item.Stem, media.AlbumFavorite, out)
	}
	return e.assign(ctx, item.Stem, media.AlbumNew, out)
}

func (e *Engine) assign(ctx context.Context, stem, album string, out *media.Outcome) error {
	if err := e.library.AssignToAlbum(ctx, stem, album); err != nil {
		return fmt.Errorf("assign %q to album %q: %w", stem, album, err)
	}
	out.Albums = append(out.Albums, album)
	return nil
}

type noProgress struct{}

func (noProgress) Add(int) error { return nil }
func (noProgress) Finish() error { return nil }
