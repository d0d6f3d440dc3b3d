package datatype

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// StringArray is a set of strings stored as a native text[] column on
// PostgreSQL and as a JSON document everywhere else.
type StringArray []string

// GormDataType gorm common data type
func (StringArray) GormDataType() string {
	return "string_array"
}

// GormDBDataType gorm db data type
func (StringArray) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "text[]"
	default:
		return "JSON"
	}
}

// Value return json value, implement driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (a StringArray) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	if db.Dialector.Name() == "postgres" {
		return gorm.Expr("?", pq.StringArray(a))
	}
	v, err := a.Value()
	if err != nil {
		_ = db.AddError(err)
	}
	return gorm.Expr("?", v)
}

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*a = StringArray{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to scan string array value: %v", value)
	}

	if len(data) == 0 {
		*a = StringArray{}
		return nil
	}
	switch data[0] {
	case '[':
		var out []string
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
		*a = StringArray(out)
		return nil
	case '{':
		var out pq.StringArray
		if err := out.Scan(data); err != nil {
			return err
		}
		*a = StringArray(out)
		return nil
	}
	return fmt.Errorf("failed to scan string array value: %s", string(data))
}

// Contains reports whether s is an element of the set.
func (a StringArray) Contains(s string) bool {
	return slices.Contains(a, s)
}

// With returns a copy of the set with s added. Adding an existing element is a no-op.
func (a StringArray) With(s string) StringArray {
	out := make(StringArray, 0, len(a)+1)
	out = append(out, a...)
	if !a.Contains(s) {
		out = append(out, s)
	}
	return out
}

// Without returns a copy of the set with every occurrence of s removed.
func (a StringArray) Without(s string) StringArray {
	out := make(StringArray, 0, len(a))
	for _, v := range a {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
