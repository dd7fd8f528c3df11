package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/bleemesser/icloudimport/classify"
	"github.com/bleemesser/icloudimport/library"
	"github.com/bleemesser/icloudimport/report"
	"github.com/bleemesser/icloudimport/tagger"
	"github.com/bleemesser/icloudimport/util"
)

const (
	referenceFile = "q.JPG"
	lockName      = ".icloudimport.lock"
	appDirName    = "icloudimport"
)

func requiredTools(goos string) []util.Tool {
	tools := []util.Tool{
		{Name: "ExifTool", Command: "exiftool", Description: "writes photo metadata"},
		{Name: "FFmpeg", Command: "ffmpeg", Description: "writes video metadata"},
	}
	if goos == "darwin" {
		tools = append(tools, util.Tool{Name: "osascript", Command: "osascript", Description: "drives Photos"})
	}
	return tools
}

// logLevel keeps per-file Info lines off stderr while a progress bar draws there.
func logLevel(progress bool) slog.Level {
	if progress {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// referencePath resolves the maker-notes reference against the working
// directory. It must exist before anything is imported.
func referencePath(name string) (string, error) {
	path, err := filepath.Abs(name)
	if err != nil {
		return "", err
	}
	if !util.Exists(path) {
		return "", fmt.Errorf("%w: %s", tagger.ErrReferenceMissing, path)
	}
	return path, nil
}

func run(ctx context.Context, args util.Args, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := report.Progress(os.Stderr)
	logger := util.NewLogger(os.Stderr, logLevel(progress != nil))

	lock := flock.New(filepath.Join(args.Folder, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire folder lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another import is already running on %s", args.Folder)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release folder lock", "error", err)
		}
		os.Remove(lock.Path())
	}()

	if err := util.MissingTools(util.CheckTools(requiredTools(runtime.GOOS))); err != nil {
		return err
	}
	reference, err := referencePath(referenceFile)
	if err != nil {
		return err
	}

	lib, closeLibrary, err := openLibrary(logger)
	if err != nil {
		return err
	}
	defer closeLibrary()

	imageTagger, err := tagger.NewImageTagger("exiftool", tagger.WithLogger(logger))
	if err != nil {
		return err
	}
	videoTagger, err := tagger.NewVideoTagger("ffmpeg", tagger.DefaultVideoTimeout, tagger.WithVideoLogger(logger))
	if err != nil {
		return err
	}
	live := tagger.LivePhoto{Image: imageTagger, Video: videoTagger}
	defer live.Close()

	engine, err := classify.New(lib, live, classify.Options{
		CheckLibrary:  args.CheckLibrary,
		ReferenceFile: reference,
		Logger:        logger,
		Progress:      progress,
	})
	if err != nil {
		return err
	}

	outcomes, runErr := engine.Run(ctx, args.Folder)
	if len(outcomes) > 0 {
		report.Write(stdout, outcomes)
	}
	if runErr != nil {
		return runErr
	}
	t := report.Summarize(outcomes)
	fmt.Fprintf(stdout, "Processed %d files from %s: %d imported, %d live photos, %d failed.\n",
		t.Files, args.Folder, t.Imported, t.Paired, t.Failed)
	return nil
}

// openLibrary uses Photos on macOS and the local SQLite library elsewhere.
func openLibrary(logger *slog.Logger) (classify.Library, func(), error) {
	if runtime.GOOS == "darwin" {
		photos, err := library.NewPhotos("osascript", library.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return photos, func() {}, nil
	}

	dir, err := localLibraryDir()
	if err != nil {
		return nil, nil, err
	}
	local, err := openLocal(dir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open local library %s: %w", dir, err)
	}
	logger.Info("using local library", "path", dir)
	return local, func() {
		if err := local.Close(); err != nil {
			logger.Warn("close local library", "error", err)
		}
	}, nil
}

func openLocal(dir string, logger *slog.Logger) (*library.Local, error) {
	if library.LocalExists(dir) {
		return library.OpenLocal(dir, logger)
	}
	return library.CreateLocal(dir, logger)
}

func localLibraryDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.New("cannot locate a directory for the local library")
	}
	return filepath.Join(base, appDirName, "library"), nil
}
