package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a string slice stored as a JSON text column.
// JSON keeps the column portable between PostgreSQL and SQLite.
type StringList []string

// Scan implements the sql.Scanner interface for reading from database
func (l *StringList) Scan(value interface{}) error {
	data, err := columnBytes(value)
	if err != nil || data == nil {
		*l = nil
		return err
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Value implements the driver.Valuer interface for writing to database
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

// Contains reports whether s is in the list
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// ScoreMap maps a key (topic, crop, author id) to a non-negative affinity score
type ScoreMap map[string]float64

// Scan implements the sql.Scanner interface for reading from database
func (m *ScoreMap) Scan(value interface{}) error {
	data, err := columnBytes(value)
	if err != nil {
		return err
	}
	*m = ScoreMap{}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, (*map[string]float64)(m))
}

// Value implements the driver.Valuer interface for writing to database
func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]float64(m))
	return string(b), err
}

// JSONMap holds free-form metadata
type JSONMap map[string]interface{}

// Scan implements the sql.Scanner interface for reading from database
func (m *JSONMap) Scan(value interface{}) error {
	data, err := columnBytes(value)
	if err != nil {
		return err
	}
	*m = JSONMap{}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, (*map[string]interface{})(m))
}

// Value implements the driver.Valuer interface for writing to database
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(m))
	return string(b), err
}

func columnBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}
