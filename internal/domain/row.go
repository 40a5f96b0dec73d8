package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FailedOutputRef is the output reference stored in a slot whose input
// could not be processed. Slots are never omitted so every output can be
// matched back to its input by position.
const FailedOutputRef = "FAILED"

// ErrorKind classifies why a single slot of a row failed.
type ErrorKind string

// Per-slot failure kinds
const (
	ErrorKindRowParse   ErrorKind = "row_parse"
	ErrorKindInvalidURL ErrorKind = "invalid_url"
	ErrorKindFetch      ErrorKind = "fetch"
	ErrorKindDecode     ErrorKind = "decode"
	ErrorKindEncode     ErrorKind = "encode"
	ErrorKindStorage    ErrorKind = "storage"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// ErrRowResultShape is returned when a RowResult breaks the one-slot-per-input rule.
var ErrRowResultShape = errors.New("row result slots do not match inputs")

// Row is one parsed data line of a batch.
type Row struct {
	Ordinal      int
	SerialNumber string
	ProductName  string
	InputURLs    []string

	// Raw and ParseErr are set when the line could not be split into fields.
	Raw      string
	ParseErr error
}

// URLOutcome is the result of processing a single input URL.
type URLOutcome struct {
	Ref       string    `json:"ref,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Succeeded reports whether the slot produced an output.
func (o URLOutcome) Succeeded() bool {
	return o.ErrorKind == ""
}

// SuccessOutcome returns an outcome for a stored output reference.
func SuccessOutcome(ref string) URLOutcome {
	return URLOutcome{Ref: ref}
}

// FailureOutcome returns an outcome for a failed slot.
func FailureOutcome(kind ErrorKind, reason string) URLOutcome {
	return URLOutcome{ErrorKind: kind, Reason: reason}
}

// RowResult is the persisted outcome of processing one Row.
type RowResult struct {
	RequestID    uuid.UUID    `json:"request_id"`
	Ordinal      int          `json:"ordinal"`
	SerialNumber string       `json:"serial_number"`
	ProductName  string       `json:"product_name"`
	InputURLs    []string     `json:"input_urls"`
	OutputRefs   []string     `json:"output_refs"`
	Outcomes     []URLOutcome `json:"outcomes"`
}

// NewRowResult builds a RowResult from per-slot outcomes, deriving the
// output reference list so that failed slots carry FailedOutputRef.
func NewRowResult(requestID uuid.UUID, row Row, outcomes []URLOutcome) RowResult {
	refs := make([]string, len(outcomes))
	for i, o := range outcomes {
		if o.Succeeded() {
			refs[i] = o.Ref
		} else {
			refs[i] = FailedOutputRef
		}
	}

	inputs := make([]string, len(row.InputURLs))
	copy(inputs, row.InputURLs)

	return RowResult{
		RequestID:    requestID,
		Ordinal:      row.Ordinal,
		SerialNumber: row.SerialNumber,
		ProductName:  row.ProductName,
		InputURLs:    inputs,
		OutputRefs:   refs,
		Outcomes:     outcomes,
	}
}

// NewRowParseFailure builds the single-slot result recorded for a line
// that could not be parsed.
func NewRowParseFailure(requestID uuid.UUID, row Row) RowResult {
	reason := "malformed row"
	if row.ParseErr != nil {
		reason = row.ParseErr.Error()
	}

	return RowResult{
		RequestID:    requestID,
		Ordinal:      row.Ordinal,
		SerialNumber: row.SerialNumber,
		ProductName:  row.ProductName,
		InputURLs:    []string{""},
		OutputRefs:   []string{FailedOutputRef},
		Outcomes:     []URLOutcome{FailureOutcome(ErrorKindRowParse, reason)},
	}
}

// Validate checks the slot invariant of the result.
func (r RowResult) Validate() error {
	if r.RequestID == uuid.Nil {
		return ErrEmptyRequestID
	}
	if len(r.OutputRefs) != len(r.InputURLs) || len(r.Outcomes) != len(r.InputURLs) {
		return fmt.Errorf("%w: %d inputs, %d outputs, %d outcomes",
			ErrRowResultShape, len(r.InputURLs), len(r.OutputRefs), len(r.Outcomes))
	}
	return nil
}

// FailedSlots returns the number of slots that did not produce an output.
func (r RowResult) FailedSlots() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}
