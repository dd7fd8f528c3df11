package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const Usage = "icloudimport <folder_path> [--check-library]"

type Args struct {
	Folder       string
	CheckLibrary bool
}

// NewArgs validates the positional arguments left over after flag parsing.
// The folder must exist and is converted to an absolute path.
func NewArgs(positional []string, checkLibrary bool) (Args, error) {
	a := Args{CheckLibrary: checkLibrary}
	if len(positional) != 1 {
		return Args{}, fmt.Errorf("expected 1 folder argument, got %d", len(positional))
	}
	a.Folder = strings.TrimSpace(positional[0])
	return validateArgs(a)
}

func validateArgs(a Args) (Args, error) {
	var e string
	if a.Folder == "" {
		e = "No folder specified"
	} else if info, err := os.Stat(a.Folder); os.IsNotExist(err) {
		e = "Directory " + a.Folder + " does not exist"
	} else if err != nil {
		e = "Cannot access " + a.Folder + ": " + err.Error()
	} else if !info.IsDir() {
		e = a.Folder + " is not a directory"
	}

	if e != "" {
		return Args{}, errors.New(e)
	}

	abs, err := filepath.Abs(a.Folder)
	if err != nil {
		return Args{}, err
	}
	a.Folder = abs
	return a, nil
}
