package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Normalized returns the lower-cased, trimmed tags with blanks removed.
// Spaces and dashes are folded to underscores so "Heart Condition" and
// "heart-condition" compare equal.
func (a StringArray) Normalized() []string {
	out := make([]string, 0, len(a))
	for _, item := range a {
		tag := strings.ToLower(strings.TrimSpace(item))
		if tag == "" {
			continue
		}
		tag = strings.NewReplacer(" ", "_", "-", "_").Replace(tag)
		out = append(out, tag)
	}
	return out
}

// Equal reports whether both arrays hold the same tags in the same order
// after normalization.
func (a StringArray) Equal(b StringArray) bool {
	na, nb := a.Normalized(), b.Normalized()
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}
