// Package exif obtains the rating and label a photo is organized by.
// Extraction is delegated to the external exiftool binary; a limited
// in-process fallback covers ratings when exiftool is unavailable.
package exif

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/stefanw/photosort/internal/util"
)

const (
	// DefaultRating is used when a file carries no rating tag
	DefaultRating = 0
	// DefaultLabel is the sentinel for files without a label tag
	DefaultLabel = "None"
)

// Reader reads a file's rating and label independently. Either read failing
// yields the default for that tag; the caller treats a file as unreadable
// only when both fail.
type Reader interface {
	Rating(path string) (int, error)
	Label(path string) (string, error)
}

// Tool reads tags via exiftool, falling back to an in-process EXIF decode
// for ratings. Labels live in XMP, which the fallback cannot reach.
type Tool struct {
	bin string // empty when exiftool is not in PATH
}

// NewTool creates a Reader backed by exiftool if available
func NewTool() *Tool {
	bin, err := exec.LookPath("exiftool")
	if err != nil {
		util.WarnLog("exiftool not found in PATH, falling back to built-in EXIF decoding (no labels)")
		return &Tool{}
	}
	return &Tool{bin: bin}
}

// Available reports whether the external exiftool binary was found
func (t *Tool) Available() bool {
	return t.bin != ""
}

// run invokes exiftool for a single tag and returns its trimmed value.
// An empty value with a zero exit status means the tag is absent.
func (t *Tool) run(path, tag string) (string, error) {
	cmd := exec.Command(t.bin, "-s3", "-"+tag, path)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("exiftool failed on %s: %s", path, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("exiftool execution failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Rating returns the file's rating tag, or DefaultRating when absent.
// exiftool is tried first; on failure or absence of the binary the EXIF
// blocks are decoded in-process.
func (t *Tool) Rating(path string) (int, error) {
	var toolErr error
	if t.bin != "" {
		val, err := t.run(path, "Rating")
		if err == nil {
			if val == "" {
				return DefaultRating, nil
			}
			return parseRating(val), nil
		}
		toolErr = err
	}

	rating, err := decodeRating(path)
	if err != nil {
		if toolErr != nil {
			return DefaultRating, toolErr
		}
		return DefaultRating, err
	}
	return rating, nil
}

// Label returns the file's label tag, or DefaultLabel when absent.
func (t *Tool) Label(path string) (string, error) {
	if t.bin == "" {
		return DefaultLabel, fmt.Errorf("%w: exiftool required for label tags", util.ErrNotFound)
	}
	val, err := t.run(path, "Label")
	if err != nil {
		return DefaultLabel, err
	}
	if val == "" {
		return DefaultLabel, nil
	}
	return NormalizeLabel(val), nil
}

// parseRating tolerates both integer and fractional tag values ("5", "5.0")
func parseRating(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return DefaultRating
}

// decodeRating reads the EXIF rating tag in-process. Most cameras do not
// write one, so an absent tag is the common case, not an error.
func decodeRating(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultRating, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	x, err := goexif.Decode(f)
	if err != nil {
		return DefaultRating, fmt.Errorf("cannot decode EXIF of %s: %w", path, err)
	}

	tag, err := x.Get(goexif.FieldName("Rating"))
	if err != nil {
		// Tag not present
		return DefaultRating, nil
	}
	if n, err := tag.Int(0); err == nil {
		return n, nil
	}
	return DefaultRating, nil
}
