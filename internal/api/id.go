package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is a resource identifier that the backend may send as a JSON number or a
// string. Numeric ids encode back as numbers; anything else (a document uid) as a
// string.
type ID string

func IDFromUint(v uint) ID {
	if v == 0 {
		return ""
	}
	return ID(strconv.FormatUint(uint64(v), 10))
}

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" || id == "0" }

// Uint returns the numeric value of a numeric id.
func (id ID) Uint() (uint, bool) {
	v, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, ok := id.Uint(); ok {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

// ParseIDs splits "1,2, 3" into ids, skipping blanks.
func ParseIDs(raw string) []ID {
	var out []ID
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, ID(part))
		}
	}
	return out
}
