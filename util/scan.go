package util

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/bleemesser/icloudimport/media"
)

var stillExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
}

// BackupPattern matches the copies metadata tools leave next to a file they rewrote.
const BackupPattern = "*_original"

// IsStill reports whether name has one of the still image extensions.
func IsStill(name string) bool {
	return stillExts[strings.ToLower(filepath.Ext(name))]
}

// IsVideo reports whether name is an mp4 video.
func IsVideo(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".mp4"
}

// Stem returns name without its final extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ListFolder returns the names of regular, non-hidden files directly inside
// dir, sorted by name. Every call reads the directory again.
func ListFolder(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

// Stills picks the still images out of a listing and resolves their companions.
func Stills(dir string, names []string) []media.MediaItem {
	var items []media.MediaItem
	for _, name := range names {
		if !IsStill(name) {
			continue
		}
		stem := Stem(name)
		items = append(items, media.MediaItem{
			Root:  dir,
			Name:  name,
			Stem:  stem,
			Video: FindCompanion(dir, stem),
		})
	}
	return items
}

// Videos picks the mp4 files out of a listing.
func Videos(dir string, names []string) []media.MediaItem {
	var items []media.MediaItem
	for _, name := range names {
		if !IsVideo(name) {
			continue
		}
		items = append(items, media.MediaItem{Root: dir, Name: name, Stem: Stem(name)})
	}
	return items
}

// FindCompanion looks for the video half of a live photo: first <stem>.mp4,
// then a file named exactly <stem>. Returns "" when neither exists.
func FindCompanion(dir, stem string) string {
	for _, candidate := range []string{stem + ".mp4", stem} {
		path := filepath.Join(dir, candidate)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PurgeBackups removes every *_original file in dir and returns the removed paths.
// Files that vanish before removal are ignored.
func PurgeBackups(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, BackupPattern))
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs []error
	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed = append(removed, match)
	}
	return removed, errors.Join(errs...)
}

func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func Copy(src, dst string) error {
	sourceFileStat, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !sourceFileStat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	if err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to copy content from %s to %s: %w", src, dst, err)
	}
	return destination.Close()
}

// CaptureTime returns the EXIF capture date of path, falling back to the
// file's modification time when there is no readable EXIF block.
func CaptureTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return info.ModTime(), nil
	}
	date, err := x.DateTime()
	if err != nil || date.IsZero() {
		return info.ModTime(), nil
	}
	return date, nil
}
