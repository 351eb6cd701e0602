package voucher

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldType enumerates the attribute value types a voucher schema can demand.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldDate   FieldType = "date"
	FieldEnum   FieldType = "enum"
)

// FieldDef is one declared attribute of a voucher area's header or line
// schema. Attributes not declared here are rejected, so a typo never silently
// drops data.
type FieldDef struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Enum     []string  `json:"enum,omitempty"`
}

// ValidateAttrs checks an attribute bag against a schema and returns every
// violation, not just the first.
func ValidateAttrs(schema []FieldDef, attrs map[string]any) []string {
	var violations []string
	byName := make(map[string]FieldDef, len(schema))
	for _, def := range schema {
		byName[def.Name] = def
		if def.Required {
			if _, ok := attrs[def.Name]; !ok {
				violations = append(violations, fmt.Sprintf("attribute %q is required", def.Name))
			}
		}
	}
	for name, value := range attrs {
		def, ok := byName[name]
		if !ok {
			violations = append(violations, fmt.Sprintf("attribute %q is not declared", name))
			continue
		}
		if msg := checkType(def, value); msg != "" {
			violations = append(violations, msg)
		}
	}
	return violations
}

func checkType(def FieldDef, value any) string {
	switch def.Type {
	case FieldString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("attribute %q must be a string", def.Name)
		}
	case FieldNumber:
		switch v := value.(type) {
		case float64, int, int64, decimal.Decimal:
		case string:
			if _, err := decimal.NewFromString(v); err != nil {
				return fmt.Sprintf("attribute %q must be a number", def.Name)
			}
		default:
			_ = v
			return fmt.Sprintf("attribute %q must be a number", def.Name)
		}
	case FieldBool:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("attribute %q must be a boolean", def.Name)
		}
	case FieldDate:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse("2006-01-02", v); err != nil {
				return fmt.Sprintf("attribute %q must be a date (YYYY-MM-DD)", def.Name)
			}
		default:
			_ = v
			return fmt.Sprintf("attribute %q must be a date", def.Name)
		}
	case FieldEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("attribute %q must be one of %s", def.Name, strings.Join(def.Enum, ", "))
		}
		for _, allowed := range def.Enum {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("attribute %q value %q not in %s", def.Name, s, strings.Join(def.Enum, ", "))
	default:
		return fmt.Sprintf("attribute %q has unknown type %q", def.Name, def.Type)
	}
	return ""
}
