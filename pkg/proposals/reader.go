// Package proposals reads detector region proposals and reduces them to a
// fixed-size, de-duplicated set per image.
package proposals

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/menta2k/mmbcd/pkg/types"
)

// FileSuffix replaces the image extension to name its proposal file.
const FileSuffix = "_preds.txt"

// Columns is the number of values on each proposal row: cx cy w h conf.
const Columns = 5

var (
	// ErrMissingFile is returned when an image has no proposal file.
	ErrMissingFile = errors.New("proposals: missing proposal file")
	// ErrShape is returned for rows that do not hold exactly five values.
	ErrShape = errors.New("proposals: malformed proposal row")
	// ErrNoProposals is returned when there is nothing to select from.
	ErrNoProposals = errors.New("proposals: no proposals")
)

// Path returns the proposal file for an image path relative to textBase.
func Path(textBase, imagePath string) string {
	trimmed := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	return filepath.Join(textBase, trimmed+FileSuffix)
}

// ReadFile loads all boxes from a proposal file.
func ReadFile(path string) ([]types.Box, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, fmt.Errorf("open proposal file: %w", err)
	}
	defer f.Close()

	boxes, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return boxes, nil
}

// Read parses whitespace separated rows. Blank lines and '#' comments are skipped.
func Read(r io.Reader) ([]types.Box, error) {
	var boxes []types.Box
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != Columns {
			return nil, fmt.Errorf("%w: line %d has %d columns, want %d", ErrShape, line, len(fields), Columns)
		}
		var vals [Columns]float64
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vals[i] = v
		}
		boxes = append(boxes, types.Box{Cx: vals[0], Cy: vals[1], W: vals[2], H: vals[3], Conf: vals[4]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proposals: %w", err)
	}
	return boxes, nil
}
