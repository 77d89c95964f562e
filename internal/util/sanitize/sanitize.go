// Package sanitize cleans operator-supplied command templates and checks
// subject/session directory names before they are substituted into glob
// patterns.
//
// Command text from settings files and YAML pipeline definitions often comes
// from editors that leave CRLF endings, BOMs or zero-width characters behind;
// those end up as literal bytes in argv and make containers fail with
// confusing "file not found" errors.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	blankRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n+`)

	// Characters with a meaning in doublestar patterns.
	globMeta = "*?[]{}\\"
)

var invisibleChars = []string{
	"\u200B", // zero-width space
	"\u200C", // zero-width non-joiner
	"\u200D", // zero-width joiner
	"\uFEFF", // BOM
	"\u00AD", // soft hyphen
	"\u2060", // word joiner
	"\u180E", // mongolian vowel separator
}

// SanitizeCommand normalises a command line: line endings, invisible
// characters and runs of blanks are collapsed, outer space is trimmed.
func SanitizeCommand(cmd string) string {
	if cmd == "" {
		return cmd
	}
	cmd = strings.ReplaceAll(cmd, "\r\n", "\n")
	cmd = strings.ReplaceAll(cmd, "\r", "\n")
	cmd = removeInvisibleChars(cmd)
	cmd = blankRun.ReplaceAllString(cmd, " ")
	cmd = newlineRun.ReplaceAllString(cmd, "\n")
	return strings.TrimSpace(cmd)
}

// SplitCommand sanitises cmd and splits it into argv tokens on blanks.
// Quoting is not interpreted; templates needing spaces inside an argument
// must be given as a token list.
func SplitCommand(cmd string) []string {
	return strings.Fields(SanitizeCommand(cmd))
}

// SanitizeField removes invisible characters and trims a single value.
func SanitizeField(field string) string {
	if field == "" {
		return field
	}
	return strings.TrimSpace(removeInvisibleChars(field))
}

// IsSafeLabel reports whether a directory name can be bound into a glob
// pattern without changing its meaning.
func IsSafeLabel(label string) bool {
	if label == "" || label == "." || label == ".." {
		return false
	}
	if strings.ContainsAny(label, globMeta) || strings.ContainsRune(label, '/') {
		return false
	}
	return SanitizeField(label) == label
}

func removeInvisibleChars(s string) string {
	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}
	return s
}
