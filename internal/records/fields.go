package records

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldMap names the store column behind every logical contact field
type FieldMap struct {
	Email                 string
	FirstName             string
	LastName              string
	InMailingList         string
	PreviousEmail         string
	PreviousInMailingList string
	PreviousFirstName     string
	PreviousLastName      string
}

// Names returns the columns requested when listing candidates, in a stable order
func (m FieldMap) Names() []string {
	return []string{
		m.Email,
		m.FirstName,
		m.LastName,
		m.InMailingList,
		m.PreviousEmail,
		m.PreviousInMailingList,
		m.PreviousFirstName,
		m.PreviousLastName,
	}
}

// Decode builds a Record from a row's column values.
// Missing columns decode to their zero value and a missing checkbox decodes to nil.
func (m FieldMap) Decode(id string, fields map[string]any) *Record {
	return &Record{
		ID:                    id,
		Email:                 stringValue(fields[m.Email]),
		FirstName:             stringValue(fields[m.FirstName]),
		LastName:              stringValue(fields[m.LastName]),
		InMailingList:         boolValue(fields[m.InMailingList]),
		PreviousEmail:         stringValue(fields[m.PreviousEmail]),
		PreviousInMailingList: boolValue(fields[m.PreviousInMailingList]),
		PreviousFirstName:     stringValue(fields[m.PreviousFirstName]),
		PreviousLastName:      stringValue(fields[m.PreviousLastName]),
	}
}

// ShadowChanges returns the column updates that make rec's shadow fields equal its live fields
func (m FieldMap) ShadowChanges(rec *Record) map[string]any {
	return map[string]any{
		m.PreviousEmail:         rec.Email,
		m.PreviousInMailingList: rec.Subscribed(),
		m.PreviousFirstName:     rec.FirstName,
		m.PreviousLastName:      rec.LastName,
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		// lookup and multiple-select columns come back as arrays
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

func boolValue(v any) *bool {
	var b bool
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		b = val
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		b = err == nil && parsed
	case float64:
		b = val != 0
	default:
		return nil
	}
	return &b
}
