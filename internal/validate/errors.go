package validate

import "fmt"

// Code classifies a validation problem. The set is closed so callers can
// branch on kind instead of matching message text.
type Code string

const (
	CodeEncodingError   Code = "ENCODING_ERROR"
	CodeCSVParseError   Code = "CSV_PARSE_ERROR"
	CodeMissingColumn   Code = "MISSING_COLUMN"
	CodeEmptyID         Code = "EMPTY_ID"
	CodeDuplicateID     Code = "DUPLICATE_ID"
	CodeEmptyValue      Code = "EMPTY_VALUE"
	CodeInvalidValue    Code = "INVALID_VALUE"
	CodeValueOutOfRange Code = "VALUE_OUT_OF_RANGE"
	CodeInvalidBinary   Code = "INVALID_BINARY"
	CodeMissingIDs      Code = "MISSING_IDS"
	CodeExtraIDs        Code = "EXTRA_IDS"
	CodeEmptyFile       Code = "EMPTY_FILE"
)

// Issue is a single validation error. Row is 0 when the issue is not tied
// to a specific data row; data rows are numbered from 2 (the header is row 1).
type Issue struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Row     int    `json:"row,omitempty"`
}

func (i Issue) String() string {
	if i.Row > 0 {
		return fmt.Sprintf("%s (row %d): %s", i.Code, i.Row, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}
