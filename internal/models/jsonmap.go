package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a string-keyed map stored as a JSON column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// GormDataType tells gorm to use a json column for JSONMap fields.
func (JSONMap) GormDataType() string {
	return "json"
}

// String reads a string-valued key, returning def when absent.
func (m JSONMap) String(key, def string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}
