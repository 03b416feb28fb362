package task

import (
	"errors"
	"fmt"
	"strings"
)

// Action selects the byte transform applied to a file.
type Action string

const (
	ActionEncrypt Action = "ENCRYPT"
	ActionDecrypt Action = "DECRYPT"
)

// ErrMalformed reports a record that violates the serialization contract.
// Decoding never attempts a best-effort partial parse.
var ErrMalformed = errors.New("malformed task record")

// fieldSeparator delimits the serialized fields. Paths containing it are
// rejected at validation time so every encoded record decodes unambiguously.
const fieldSeparator = "\x1f"

// ParseAction converts user input into a known Action.
func ParseAction(value string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(value))) {
	case ActionEncrypt:
		return ActionEncrypt, true
	case ActionDecrypt:
		return ActionDecrypt, true
	default:
		return "", false
	}
}

// Record is the unit of work carried through the shared queue: one file path
// and the transform to apply to it.
type Record struct {
	Path   string
	Action Action
}

// Validate reports whether the record can be encoded and later executed.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("%w: empty path", ErrMalformed)
	}
	if strings.Contains(r.Path, fieldSeparator) {
		return fmt.Errorf("%w: path contains reserved separator", ErrMalformed)
	}
	if r.Action != ActionEncrypt && r.Action != ActionDecrypt {
		return fmt.Errorf("%w: unknown action %q", ErrMalformed, string(r.Action))
	}
	return nil
}

// Encode serializes the record into its delimited wire form. Invalid records
// fail here, before any queue slot is reserved.
func (r Record) Encode() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return []byte(string(r.Action) + fieldSeparator + r.Path), nil
}

// Decode parses a serialized record. Round trip law: for every valid record
// t, Decode(Encode(t)) returns a record equal to t.
func Decode(data []byte) (Record, error) {
	if len(data) == 0 {
		return Record{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	parts := strings.Split(string(data), fieldSeparator)
	if len(parts) != 2 {
		return Record{}, fmt.Errorf("%w: expected 2 fields, got %d", ErrMalformed, len(parts))
	}
	action, ok := ParseAction(parts[0])
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, parts[0])
	}
	if parts[1] == "" {
		return Record{}, fmt.Errorf("%w: empty path", ErrMalformed)
	}
	return Record{Path: parts[1], Action: action}, nil
}
