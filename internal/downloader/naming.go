package downloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/italolelis/bilidown/internal/media"
)

const (
	outputExt     = ".mp4"
	fallbackName  = "video"
	maxNameBytes  = 200
	maxCandidates = 10000
	outputPerm    = 0o644
)

// SanitizeTitle turns a video title into a file name stem that is valid on common filesystems.
func SanitizeTitle(title string) string {
	var b strings.Builder

	for _, r := range norm.NFC.String(title) {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	name := strings.Trim(b.String(), " .")

	if len(name) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}

		name = strings.Trim(name[:cut], " .")
	}

	if name == "" {
		return fallbackName
	}

	return name
}

func candidatePath(dir, stem string, n int) string {
	if n == 0 {
		return filepath.Join(dir, stem+outputExt)
	}

	return filepath.Join(dir, stem+"-"+strconv.Itoa(n)+outputExt)
}

// nextFree probes candidates starting at index from and returns the first that does not exist.
func nextFree(dir, stem string, from int) (string, int, error) {
	for n := from; n < maxCandidates; n++ {
		p := candidatePath(dir, stem, n)

		_, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return p, n, nil
		}

		if err != nil {
			return "", 0, &media.PathError{Path: p, Reason: "cannot probe output file", Err: err}
		}
	}

	return "", 0, &media.PathError{Path: dir, Reason: fmt.Sprintf("no free file name for %q", stem)}
}

// absDir makes dir absolute so a generated name can never start with "-" and be read as a
// command line option.
func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &media.PathError{Path: dir, Reason: "cannot resolve", Err: err}
	}

	return abs, nil
}

// GenerateUniqueFilename returns title.mp4, title-1.mp4, ... inside dir, whichever is the
// first that does not exist at call time. The returned path is absolute.
func GenerateUniqueFilename(dir, title string) (string, error) {
	dir, err := absDir(dir)
	if err != nil {
		return "", err
	}

	p, _, err := nextFree(dir, SanitizeTitle(title), 0)

	return p, err
}

// ReserveOutput picks a unique output path like GenerateUniqueFilename and creates it
// exclusively, so a file created by someone else between the probe and the create moves
// the selection to the next candidate instead of being overwritten.
func ReserveOutput(dir, title string) (string, error) {
	dir, err := absDir(dir)
	if err != nil {
		return "", err
	}

	stem := SanitizeTitle(title)

	for from := 0; ; {
		p, n, err := nextFree(dir, stem, from)
		if err != nil {
			return "", err
		}

		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, outputPerm)
		if errors.Is(err, fs.ErrExist) {
			from = n + 1

			continue
		}

		if err != nil {
			return "", &media.PathError{Path: p, Reason: "cannot create output file", Err: err}
		}

		if err := f.Close(); err != nil {
			return "", &media.PathError{Path: p, Reason: "cannot create output file", Err: err}
		}

		return p, nil
	}
}

// CheckOutputDir verifies that dir exists and is a directory.
func CheckOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &media.PathError{Path: dir, Reason: "does not exist", Err: err}
		}

		return &media.PathError{Path: dir, Reason: "cannot access", Err: err}
	}

	if !info.IsDir() {
		return &media.PathError{Path: dir, Reason: "not a directory"}
	}

	return nil
}
