package validate

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// ValueType constrains how prediction values are parsed.
type ValueType string

const (
	TypeFloat  ValueType = "float"
	TypeInt    ValueType = "int"
	TypeBinary ValueType = "binary"
)

// Options configures a validation pass.
type Options struct {
	// IDColumn and ValueColumn are the required header names.
	IDColumn    string
	ValueColumn string

	// ExpectedIDs, when non-nil, enables the missing/extra id set check.
	ExpectedIDs []string

	// ValueMin and ValueMax bound parsed values inclusively when non-nil.
	ValueMin *float64
	ValueMax *float64

	// ValueType defaults to TypeFloat.
	ValueType ValueType
}

// Result holds everything a single validation pass produced. Except for the
// schema fail-fast, all error classes are collected in one pass so the caller
// sees every problem at once.
type Result struct {
	Valid    bool
	Errors   []Issue
	IDs      []string
	Values   []float64
	RowCount int
}

// sampleLimit caps how many example ids a set-mismatch message lists.
const sampleLimit = 5

// Validate parses raw CSV bytes into typed id/value columns, collecting
// structured errors. Data rows are numbered from 2; the header is row 1.
// Missing required columns fail fast without scanning rows. Duplicate ids
// keep the first occurrence's value; later duplicates are reported but not
// re-recorded.
func Validate(content []byte, opts Options) Result {
	if opts.IDColumn == "" {
		opts.IDColumn = "id"
	}
	if opts.ValueColumn == "" {
		opts.ValueColumn = "prediction"
	}
	if opts.ValueType == "" {
		opts.ValueType = TypeFloat
	}

	text, issue := decode(content)
	if issue != nil {
		return Result{Valid: false, Errors: []Issue{*issue}}
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Result{Valid: false, Errors: []Issue{{
			Code:    CodeEmptyFile,
			Message: "File contains no data rows",
		}}}
	}
	if err != nil {
		return Result{Valid: false, Errors: []Issue{{
			Code:    CodeCSVParseError,
			Message: fmt.Sprintf("Failed to parse CSV: %v", err),
		}}}
	}

	idIdx, valIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case opts.IDColumn:
			if idIdx < 0 {
				idIdx = i
			}
		case opts.ValueColumn:
			if valIdx < 0 {
				valIdx = i
			}
		}
	}

	// Schema mismatch fails fast: no row scan.
	var errs []Issue
	if idIdx < 0 {
		errs = append(errs, Issue{
			Code:    CodeMissingColumn,
			Message: fmt.Sprintf("Missing required column: %s", opts.IDColumn),
			Field:   opts.IDColumn,
		})
	}
	if valIdx < 0 {
		errs = append(errs, Issue{
			Code:    CodeMissingColumn,
			Message: fmt.Sprintf("Missing required column: %s", opts.ValueColumn),
			Field:   opts.ValueColumn,
		})
	}
	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}

	res := Result{}
	seen := make(map[string]struct{})
	rowNum := 1 // header

	for {
		rowNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeCSVParseError,
				Message: fmt.Sprintf("Failed to parse CSV: %v", err),
				Row:     rowNum,
			})
			continue
		}
		res.RowCount++

		id := strings.TrimSpace(field(record, idIdx))
		if id == "" {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeEmptyID,
				Message: "Empty ID value",
				Field:   opts.IDColumn,
				Row:     rowNum,
			})
			continue
		}

		if _, dup := seen[id]; dup {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeDuplicateID,
				Message: fmt.Sprintf("Duplicate ID: %s", id),
				Field:   opts.IDColumn,
				Row:     rowNum,
			})
			continue
		}
		seen[id] = struct{}{}

		raw := strings.TrimSpace(field(record, valIdx))
		if raw == "" {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeEmptyValue,
				Message: "Empty prediction value",
				Field:   opts.ValueColumn,
				Row:     rowNum,
			})
			continue
		}

		value, ok := parseValue(raw, opts.ValueType)
		if !ok {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeInvalidValue,
				Message: fmt.Sprintf("Invalid %s value: %s", opts.ValueType, raw),
				Field:   opts.ValueColumn,
				Row:     rowNum,
			})
			continue
		}

		// Range and binary violations are reported but the value is still
		// recorded, so one pass surfaces every problem.
		if opts.ValueMin != nil && value < *opts.ValueMin {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeValueOutOfRange,
				Message: fmt.Sprintf("Value %v is below minimum %v", value, *opts.ValueMin),
				Field:   opts.ValueColumn,
				Row:     rowNum,
			})
		}
		if opts.ValueMax != nil && value > *opts.ValueMax {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeValueOutOfRange,
				Message: fmt.Sprintf("Value %v is above maximum %v", value, *opts.ValueMax),
				Field:   opts.ValueColumn,
				Row:     rowNum,
			})
		}
		if opts.ValueType == TypeBinary && value != 0 && value != 1 {
			res.Errors = append(res.Errors, Issue{
				Code:    CodeInvalidBinary,
				Message: fmt.Sprintf("Binary prediction must be 0 or 1, got %v", value),
				Field:   opts.ValueColumn,
				Row:     rowNum,
			})
		}

		res.IDs = append(res.IDs, id)
		res.Values = append(res.Values, value)
	}

	if opts.ExpectedIDs != nil {
		res.Errors = append(res.Errors, checkIDSets(opts.ExpectedIDs, res.IDs, seen, opts.IDColumn)...)
	}

	if res.RowCount == 0 {
		res.Errors = append(res.Errors, Issue{
			Code:    CodeEmptyFile,
			Message: "File contains no data rows",
		})
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// checkIDSets summarizes missing and extra ids against the expected set,
// listing up to sampleLimit examples each plus an elision count.
func checkIDSets(expected, got []string, seen map[string]struct{}, idColumn string) []Issue {
	expectedSet := make(map[string]struct{}, len(expected))
	for _, id := range expected {
		expectedSet[id] = struct{}{}
	}

	var missing []string
	for _, id := range expected {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	var extra []string
	for _, id := range got {
		if _, ok := expectedSet[id]; !ok {
			extra = append(extra, id)
		}
	}

	var issues []Issue
	if len(missing) > 0 {
		issues = append(issues, Issue{
			Code:    CodeMissingIDs,
			Message: summarizeIDs("Missing %d expected IDs: %s", missing),
			Field:   idColumn,
		})
	}
	if len(extra) > 0 {
		issues = append(issues, Issue{
			Code:    CodeExtraIDs,
			Message: summarizeIDs("Found %d unexpected IDs: %s", extra),
			Field:   idColumn,
		})
	}
	return issues
}

func summarizeIDs(format string, ids []string) string {
	sample := ids
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}
	msg := fmt.Sprintf(format, len(ids), strings.Join(sample, ", "))
	if len(ids) > sampleLimit {
		msg += fmt.Sprintf(" ... and %d more", len(ids)-sampleLimit)
	}
	return msg
}

// decode interprets raw bytes as UTF-8, falling back to Latin-1.
func decode(content []byte) (string, *Issue) {
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(content) {
		return string(content), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", &Issue{
			Code:    CodeEncodingError,
			Message: "File encoding not supported. Use UTF-8.",
		}
	}
	return string(decoded), nil
}

func field(record []string, idx int) string {
	if idx < len(record) {
		return record[idx]
	}
	return ""
}

// parseValue parses per value type. Int and binary values accept float
// syntax and truncate toward zero.
func parseValue(raw string, vt ValueType) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if vt == TypeInt || vt == TypeBinary {
		return float64(int64(f)), true
	}
	return f, true
}

// ErrInvalidSolution marks a ground-truth file that failed validation.
// Scoring for the competition stays broken until the file is corrected.
var ErrInvalidSolution = errors.New("invalid solution file")

// Solution is an immutable ground-truth id to target mapping, one per
// competition. IDs are unique, non-empty, and keep file order.
type Solution struct {
	IDs     []string
	Targets map[string]float64
}

// Len returns the number of truth rows.
func (s *Solution) Len() int { return len(s.IDs) }

// LoadSolution parses a ground-truth CSV into a Solution. The truth file is
// held to the same rules as a submission with float values and no bounds.
func LoadSolution(content []byte, idColumn, targetColumn string) (*Solution, error) {
	if idColumn == "" {
		idColumn = "id"
	}
	if targetColumn == "" {
		targetColumn = "target"
	}

	res := Validate(content, Options{
		IDColumn:    idColumn,
		ValueColumn: targetColumn,
		ValueType:   TypeFloat,
	})
	if !res.Valid {
		return nil, eris.Wrapf(ErrInvalidSolution, "%s", res.Errors[0].Message)
	}

	sol := &Solution{
		IDs:     res.IDs,
		Targets: make(map[string]float64, len(res.IDs)),
	}
	for i, id := range res.IDs {
		sol.Targets[id] = res.Values[i]
	}
	return sol, nil
}
