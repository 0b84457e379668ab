// Package parser turns comma-separated datamap definitions into validated lines.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/datamaps/internal/apperr"
	"github.com/starford/datamaps/internal/models"
)

const (
	delimiter = ","
	bom       = "\uFEFF"

	// MaxCellrefLen bounds a cell reference such as "XFD1048576".
	MaxCellrefLen = 10

	maxLineBytes = 1 << 20
)

var cellrefRe = regexp.MustCompile(`^[A-Z]{1,3}[0-9]+$`)

// Result holds the output of parsing a definition source.
type Result struct {
	Header      []string
	FieldCount  int
	Lines       []models.DatamapLine
	Diagnostics []*apperr.RecordError
}

// Accepted returns the number of lines that became DatamapLines.
func (r *Result) Accepted() int { return len(r.Lines) }

// Rejected returns the number of malformed lines.
func (r *Result) Rejected() int { return len(r.Diagnostics) }

// ParseFile opens path and parses it as a definition source.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrSourceUnreadable, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a definition source line by line. The first non-empty line is
// the header and fixes the expected field count; every later line with a
// different count, or whose key/sheet/cellref fail validation, is skipped and
// reported in Diagnostics. Only read failures return an error.
func Parse(r io.Reader) (*Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	res := &Result{}
	lineno := 0
	for sc.Scan() {
		lineno++
		text := sc.Text()
		if lineno == 1 {
			text = strings.TrimPrefix(text, bom)
		}
		text = strings.TrimRight(text, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		fields := strings.Split(text, delimiter)
		if res.FieldCount == 0 {
			res.FieldCount = len(fields)
			res.Header = trimFields(fields)
			continue
		}

		if len(fields) != res.FieldCount {
			res.reject(lineno, text, fmt.Sprintf("field-count mismatch: got %d, want %d", len(fields), res.FieldCount))
			continue
		}
		// Header with fewer than three columns; nothing can be mapped.
		if len(fields) < 3 {
			res.reject(lineno, text, fmt.Sprintf("too few fields: got %d, want at least 3", len(fields)))
			continue
		}

		line := models.DatamapLine{
			Key:     strings.TrimSpace(fields[0]),
			Sheet:   strings.TrimSpace(fields[1]),
			Cellref: strings.ToUpper(strings.TrimSpace(fields[2])),
			Line:    lineno,
		}
		if err := ValidateLine(&line); err != nil {
			res.reject(lineno, text, err.Error())
			continue
		}
		res.Lines = append(res.Lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %w", apperr.ErrSourceUnreadable, lineno+1, err)
	}
	return res, nil
}

// ValidateLine checks the mapped fields of a single definition line.
func ValidateLine(l *models.DatamapLine) error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Key, validation.Required),
		validation.Field(&l.Sheet, validation.Required),
		validation.Field(&l.Cellref,
			validation.Required,
			validation.Length(2, MaxCellrefLen),
			validation.Match(cellrefRe).Error("must be a cell reference such as A1"),
		),
	)
}

func (r *Result) reject(lineno int, text, reason string) {
	r.Diagnostics = append(r.Diagnostics, &apperr.RecordError{
		Line:   lineno,
		Text:   text,
		Reason: reason,
	})
}

func trimFields(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
