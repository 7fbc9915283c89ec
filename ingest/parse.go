package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pithecene-io/assay/types"
)

// ParseError reports a record that failed to parse or normalize.
// LoadID and CustomerID are best-effort: populated when the JSON layer
// decoded even though a field failed, so the decline decision can
// still identify the record.
type ParseError struct {
	// Field names the offending input field ("record", "id",
	// "customer_id", "load_amount", "time").
	Field      string
	LoadID     string
	CustomerID string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// wireRecord is the JSON shape of one ingress line.
// Unknown fields are ignored; the idempotency gate, not the decoder,
// handles duplicate lines.
type wireRecord struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	LoadAmount string `json:"load_amount"`
	Time       string `json:"time"`
}

// Parse decodes and normalizes one raw record into an Event.
// On failure it returns a *ParseError; the caller surfaces it as a
// MALFORMED_INPUT decline and never touches window state.
func Parse(rec types.RawRecord) (*types.Event, error) {
	var wire wireRecord
	if err := json.Unmarshal(rec.Line, &wire); err != nil {
		return nil, &ParseError{Field: "record", Err: err}
	}

	perr := func(field string, err error) *ParseError {
		return &ParseError{Field: field, LoadID: wire.ID, CustomerID: wire.CustomerID, Err: err}
	}

	if wire.ID == "" {
		return nil, perr("id", errMissing)
	}
	if wire.CustomerID == "" {
		return nil, perr("customer_id", errMissing)
	}
	if wire.LoadAmount == "" {
		return nil, perr("load_amount", errMissing)
	}
	if wire.Time == "" {
		return nil, perr("time", errMissing)
	}

	amount, err := types.ParseMoney(NormalizeAmount(wire.LoadAmount))
	if err != nil {
		return nil, perr("load_amount", err)
	}

	instant, err := time.Parse(time.RFC3339Nano, wire.Time)
	if err != nil {
		return nil, perr("time", err)
	}

	return &types.Event{
		LoadID:     wire.ID,
		CustomerID: wire.CustomerID,
		Time:       instant.UTC(),
		Amount:     amount,
		RawAmount:  wire.LoadAmount,
		Seq:        rec.Seq,
	}, nil
}

var errMissing = fmt.Errorf("field is missing or empty")

// NormalizeAmount strips dirty currency prefixes from an amount text:
//  1. All whitespace is removed.
//  2. Up to two leading tokens drawn from "USD" and "$" are stripped,
//     in either order (covers USD, $, USD$, $USD).
//
// The residue is returned for decimal parsing; normalization itself
// never fails.
func NormalizeAmount(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	for range 2 {
		switch {
		case strings.HasPrefix(cleaned, "USD"):
			cleaned = cleaned[len("USD"):]
		case strings.HasPrefix(cleaned, "$"):
			cleaned = cleaned[len("$"):]
		default:
			return cleaned
		}
	}
	return cleaned
}
