package pagination

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by MissingFieldError.
var ErrMissingField = errors.New("missing field")

// MissingFieldError reports an item that lacks the projected field.
type MissingFieldError struct {
	Field string
	Index int
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("item %d: %s %q", e.Index, ErrMissingField, e.Field)
}

// Unwrap implements error unwrapping for errors.Is.
func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// Project maps every item to the text of field, keeping order.
// A missing or null field fails the whole projection.
func Project(items []RawItem, field string) ([]string, error) {
	out := make([]string, 0, len(items))
	for i, item := range items {
		value, ok := item[field]
		if !ok || value == nil {
			return nil, &MissingFieldError{Field: field, Index: i}
		}

		text, err := stringify(value)
		if err != nil {
			return nil, fmt.Errorf("item %d: field %q: %w", i, field, err)
		}
		out = append(out, text)
	}
	return out, nil
}

func stringify(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool, float64, int, int64:
		return fmt.Sprint(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
