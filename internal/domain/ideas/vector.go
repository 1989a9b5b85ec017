package ideas

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Vector is a fixed-dimension embedding stored as pgvector on postgres and
// as its text form ("[0.1,0.2]") elsewhere.
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

func (v *Vector) Scan(src any) error {
	var raw string
	switch t := src.(type) {
	case nil:
		*v = nil
		return nil
	case string:
		raw = t
	case []byte:
		raw = string(t)
	default:
		return fmt.Errorf("vector: unsupported scan type %T", src)
	}
	parsed, err := ParseVector(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (Vector) GormDataType() string { return "vector" }

func (Vector) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return "vector"
	}
	return "text"
}

func ParseVector(raw string) (Vector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if strings.TrimSpace(raw) == "" {
		return Vector{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make(Vector, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector: parse %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
