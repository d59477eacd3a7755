package identifier

import (
	"strings"
	"unicode/utf8"
)

const maxNameLength = 100

// SanitizeFilename replaces characters that are illegal in file names and
// caps the length at 100 characters, ending long names with "...".
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)

	if utf8.RuneCountInString(name) > maxNameLength {
		runes := []rune(name)
		name = string(runes[:maxNameLength-3]) + "..."
	}
	return name
}

// DirName is the per-content output directory: "<identifier>_<title>"
func DirName(id, title string) string {
	return id + "_" + SanitizeFilename(title)
}

// TitleFromDirName recovers the title part of a DirName, or "" when name
// does not start with a BV, EP or SS code.
func TitleFromDirName(name string) string {
	code, title, ok := strings.Cut(name, "_")
	if !ok {
		return ""
	}
	for _, p := range []string{"BV", "EP", "SS"} {
		if strings.HasPrefix(code, p) {
			return title
		}
	}
	return ""
}
