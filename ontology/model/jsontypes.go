package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap, JSONStringSlice and JSONAny are the GORM-compatible scan/value
// wrappers for the jsonb columns above. Kept tiny and explicit rather than
// pulling in a generic JSON column library, since the teacher's own models
// never needed more than Scan/Value on a handful of shapes.

type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("jsonmap: unsupported scan type %T", value)
		}
		b = []byte(s)
	}
	if len(b) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(b, m)
}

type JSONStringSlice []string

func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *JSONStringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = JSONStringSlice{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("jsonstringslice: unsupported scan type %T", value)
		}
		b = []byte(str)
	}
	if len(b) == 0 {
		*s = JSONStringSlice{}
		return nil
	}
	return json.Unmarshal(b, s)
}

// JSONAny carries an arbitrary JSON scalar or structure (default values,
// enum values) through a jsonb column without losing its shape.
type JSONAny struct {
	Raw json.RawMessage
}

// NewJSONAny marshals v (a document's untyped default value, as decoded
// from YAML/JSON) into a JSONAny ready to persist. A nil v yields an empty
// JSONAny, same as the zero value.
func NewJSONAny(v interface{}) JSONAny {
	if v == nil {
		return JSONAny{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return JSONAny{}
	}
	return JSONAny{Raw: raw}
}

// Interface unmarshals the stored JSON back into a generic Go value (map,
// slice, string, float64, bool, or nil), the inverse of NewJSONAny.
func (a JSONAny) Interface() (interface{}, error) {
	if len(a.Raw) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(a.Raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (a JSONAny) Value() (driver.Value, error) {
	if len(a.Raw) == 0 {
		return "null", nil
	}
	return string(a.Raw), nil
}

func (a *JSONAny) Scan(value interface{}) error {
	if value == nil {
		a.Raw = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		a.Raw = append([]byte(nil), v...)
	case string:
		a.Raw = []byte(v)
	default:
		return fmt.Errorf("jsonany: unsupported scan type %T", value)
	}
	return nil
}

func (a JSONAny) MarshalJSON() ([]byte, error) {
	if len(a.Raw) == 0 {
		return []byte("null"), nil
	}
	return a.Raw, nil
}

func (a *JSONAny) UnmarshalJSON(data []byte) error {
	a.Raw = append([]byte(nil), data...)
	return nil
}
