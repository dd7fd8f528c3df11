package library

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// quote renders s as an AppleScript string literal. macOS hands out NFD
// filenames while Photos stores NFC, so values are composed first.
func quote(s string) string {
	s = norm.NFC.String(s)
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func posixFile(path string) string {
	return fmt.Sprintf("POSIX file %s as alias", quote(path))
}

func ensureAlbumScript(name string) string {
	return fmt.Sprintf(`tell application "Photos"
	if not (exists album named %[1]s) then
		make new album named %[1]s
	end if
	return name of album named %[1]s
end tell`, quote(name))
}

func assignScript(stem, album string) string {
	return fmt.Sprintf(`tell application "Photos"
	set foundItems to every media item whose filename contains %s
	if (count of foundItems) > 0 then
		add foundItems to album named %s
	end if
	return count of foundItems
end tell`, quote(stem), quote(album))
}

func queryScript(stem string) string {
	return fmt.Sprintf(`tell application "Photos"
	set foundItems to every media item whose filename contains %s
	if (count of foundItems) > 0 then
		set isLiked to false
		repeat with anItem in foundItems
			if favorite of anItem is true then
				set isLiked to true
			end if
		end repeat
		return "found, liked: " & isLiked
	else
		return "not found"
	end if
end tell`, quote(stem))
}

func importScript(album string, paths ...string) string {
	files := make([]string, 0, len(paths))
	for _, path := range paths {
		files = append(files, posixFile(path))
	}
	return fmt.Sprintf(`tell application "Photos"
	import {%s} into album named %s skip check duplicates true
end tell`, strings.Join(files, ", "), quote(album))
}
