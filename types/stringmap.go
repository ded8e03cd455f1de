package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONStringMap is a string map stored as a JSON column, it implements
// driver.Valuer and sql.Scanner for gorm.
type JSONStringMap map[string]string

// Value implements driver.Valuer.
func (m JSONStringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	ba, err := json.Marshal(map[string]string(m))
	return string(ba), err
}

// Scan implements sql.Scanner.
func (m *JSONStringMap) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONStringMap", val)
	}
	t := map[string]string{}
	err := json.Unmarshal(ba, &t)
	*m = JSONStringMap(t)
	return err
}

// GormDataType implements the gorm common data type hook.
func (m JSONStringMap) GormDataType() string {
	return "jsonstringmap"
}

// GormDBDataType picks the column type per dialect.
func (JSONStringMap) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	default:
		return "JSON"
	}
}
