package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap is a JSON object stored in a jsonb column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("JSONMap.Scan: unsupported column type")
	}
	return json.Unmarshal(bytes, m)
}
