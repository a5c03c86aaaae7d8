package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// UintList persists a list of ids as a JSON text column.
type UintList []uint

func (l UintList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]uint(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *UintList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan uint list: unsupported type %T", value)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	var out []uint
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan uint list: %w", err)
	}
	*l = out
	return nil
}
