package exif

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel prepares a label tag for use as a directory name: Unicode
// NFC so the same label always yields the same byte sequence, trimmed, and
// with path separators replaced since the label becomes a single segment.
func NormalizeLabel(label string) string {
	label = norm.NFC.String(label)
	label = strings.TrimSpace(label)
	label = strings.ReplaceAll(label, "/", "-")
	label = strings.ReplaceAll(label, "\\", "-")
	if label == "" {
		return DefaultLabel
	}
	return label
}
