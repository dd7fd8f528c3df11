package tagger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bleemesser/icloudimport/media"
	"github.com/bleemesser/icloudimport/util"
)

// QuickTimeContentIdentifierKey is the mdta key Photos reads from the video half.
const QuickTimeContentIdentifierKey = "com.apple.quicktime.content.identifier"

// DefaultVideoTimeout bounds a single export.
const DefaultVideoTimeout = 5 * time.Minute

// VideoOption configures a VideoTagger.
type VideoOption func(*VideoTagger)

// WithVideoExecutor injects a custom executor (primarily for tests).
func WithVideoExecutor(exec util.Executor) VideoOption {
	return func(v *VideoTagger) {
		if exec != nil {
			v.exec = exec
		}
	}
}

// WithVideoLogger sets the tagger's logger.
func WithVideoLogger(logger *slog.Logger) VideoOption {
	return func(v *VideoTagger) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// VideoTagger rewrites a video as a QuickTime movie carrying a content
// identifier. Streams are copied, not re-encoded.
type VideoTagger struct {
	binary  string
	timeout time.Duration
	exec    util.Executor
	logger  *slog.Logger
}

// NewVideoTagger constructs a VideoTagger around ffmpeg. A non-positive
// timeout falls back to DefaultVideoTimeout.
func NewVideoTagger(binary string, timeout time.Duration, opts ...VideoOption) (*VideoTagger, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	if timeout <= 0 {
		timeout = DefaultVideoTimeout
	}
	v := &VideoTagger{
		binary:  binary,
		timeout: timeout,
		exec:    util.CommandExecutor{},
		logger:  util.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// TagVideo moves path aside to .<id>_<name>, exports it back to path with the
// identifier attached, and waits for the export to finish. On failure or
// timeout the original file is put back and the error is returned.
func (v *VideoTagger) TagVideo(ctx context.Context, path string, id media.ContentIdentifier) error {
	v.logger.Info("adding content identifier", "path", path, "content_identifier", id.String())

	temp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s_%s", id, filepath.Base(path)))
	if err := os.Rename(path, temp); err != nil {
		return fmt.Errorf("move video aside: %w", err)
	}

	exportCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := v.exec.Run(exportCtx, v.binary, exportArgs(temp, path, id)...)
		if err == nil && !util.Exists(path) {
			err = errors.New("export produced no output")
		}
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-exportCtx.Done():
		err = fmt.Errorf("export did not finish: %w", exportCtx.Err())
		// the executor is bound to exportCtx and returns once the process is killed
		<-done
	}

	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			v.logger.Warn("partial export could not be removed", "path", path, "error", rmErr)
		}
		if restoreErr := os.Rename(temp, path); restoreErr != nil {
			return fmt.Errorf("tag video %s: %w (restore failed: %v)", filepath.Base(path), err, restoreErr)
		}
		return fmt.Errorf("tag video %s: %w", filepath.Base(path), err)
	}

	if err := os.Remove(temp); err != nil && !errors.Is(err, os.ErrNotExist) {
		v.logger.Warn("temporary video could not be removed", "path", temp, "error", err)
	}
	return nil
}

func exportArgs(input, output string, id media.ContentIdentifier) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", input,
		"-map", "0",
		"-c", "copy",
		"-map_metadata", "0",
		"-movflags", "use_metadata_tags",
		"-metadata", QuickTimeContentIdentifierKey + "=" + id.String(),
		"-f", "mov",
		output,
	}
}
