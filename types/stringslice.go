package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONStringSlice is a string slice stored as a JSON column. It implements
// driver.Valuer and sql.Scanner for the gorm persister (room owner and
// member id sets).
type JSONStringSlice []string

// Value return json value, implement driver.Valuer interface
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	ba, err := s.MarshalJSON()
	return string(ba), err
}

// Scan scan value into the slice, implements sql.Scanner interface
func (s *JSONStringSlice) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", val))
	}
	t := make([]string, 0)
	err := json.Unmarshal(ba, &t)
	*s = JSONStringSlice(t)
	return err
}

// MarshalJSON to output non base64 encoded []byte
func (s JSONStringSlice) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal([]string(s))
}

// UnmarshalJSON to deserialize []byte
func (s *JSONStringSlice) UnmarshalJSON(b []byte) error {
	t := make([]string, 0)
	err := json.Unmarshal(b, &t)
	*s = JSONStringSlice(t)
	return err
}

// GormDataType gorm common data type
func (s JSONStringSlice) GormDataType() string {
	return "jsonstringslice"
}

// GormDBDataType picks the column type for the supported dialects.
func (JSONStringSlice) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
