// Package media holds the data model shared by the classification engine and
// its collaborators.
package media

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Album names the engine sorts items into.
const (
	AlbumNew        = "New and Duplicates"
	AlbumDuplicates = "Duplicates in Library"
	AlbumFavorite   = "Favorite"
	AlbumImported   = "Imported"
)

// MatchResult is the outcome of looking a filename stem up in the library.
type MatchResult int

const (
	NotFound MatchResult = iota
	FoundNotFavorite
	FoundFavorite
)

func (m MatchResult) String() string {
	switch m {
	case NotFound:
		return "not found"
	case FoundNotFavorite:
		return "found"
	case FoundFavorite:
		return "found, favorite"
	default:
		return "unknown"
	}
}

// Found reports whether the library already holds a matching item.
func (m MatchResult) Found() bool {
	return m == FoundNotFavorite || m == FoundFavorite
}

// ContentIdentifier ties a still image and its companion video together as one
// live photo. The same value is written into both files.
type ContentIdentifier string

// NewContentIdentifier mints a random UUID v4 in uppercase canonical form.
func NewContentIdentifier() ContentIdentifier {
	return ContentIdentifier(strings.ToUpper(uuid.NewString()))
}

func (c ContentIdentifier) String() string {
	return string(c)
}

// MediaItem is one unit of work found in the input folder: a still image with
// an optional companion video, or a standalone video.
type MediaItem struct {
	Root  string
	Name  string
	Stem  string
	Video string // companion path, empty when unpaired
}

// Path returns the absolute path of the item's primary file.
func (m MediaItem) Path() string {
	return filepath.Join(m.Root, m.Name)
}

// Paired reports whether a companion video was found.
func (m MediaItem) Paired() bool {
	return m.Video != ""
}

// Pass identifies which scan produced an outcome.
type Pass string

const (
	PassStill Pass = "still"
	PassVideo Pass = "video"
)

// Outcome records what the engine did with a single file.
type Outcome struct {
	Name       string
	Pass       Pass
	Match      MatchResult
	Queried    bool
	Paired     bool
	Identifier ContentIdentifier
	Imported   bool
	Albums     []string
	Skipped    bool
	Err        string
}
