package model

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ValueKind discriminates the payload of a FactValue.
type ValueKind string

const (
	ValueNumber     ValueKind = "number"
	ValueString     ValueKind = "string"
	ValueBool       ValueKind = "bool"
	ValueStringList ValueKind = "string_list"
	ValueObject     ValueKind = "object"
)

// FactValue is the tagged union of fact value shapes accepted from agents:
// number, string, boolean, list of strings, or a structured object map.
// It round-trips through JSON as the bare union (no envelope), so stored
// values are plain JSON documents.
type FactValue struct {
	Kind   ValueKind
	Number float64
	Str    string
	Bool   bool
	List   []string
	Object map[string]any
}

// NumberValue builds a number-kind FactValue.
func NumberValue(v float64) FactValue { return FactValue{Kind: ValueNumber, Number: v} }

// StringValue builds a string-kind FactValue.
func StringValue(v string) FactValue { return FactValue{Kind: ValueString, Str: v} }

// BoolValue builds a bool-kind FactValue.
func BoolValue(v bool) FactValue { return FactValue{Kind: ValueBool, Bool: v} }

// ListValue builds a string-list FactValue.
func ListValue(v ...string) FactValue { return FactValue{Kind: ValueStringList, List: v} }

// ObjectValue builds an object-map FactValue.
func ObjectValue(v map[string]any) FactValue { return FactValue{Kind: ValueObject, Object: v} }

// IsZero reports whether the value carries no payload at all.
func (v FactValue) IsZero() bool {
	return v.Kind == ""
}

// Equal reports structural equality of two fact values. Values of different
// kinds are never equal; object maps compare deeply.
func (v FactValue) Equal(o FactValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueNumber:
		return v.Number == o.Number
	case ValueString:
		return v.Str == o.Str
	case ValueBool:
		return v.Bool == o.Bool
	case ValueStringList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	case ValueObject:
		return reflect.DeepEqual(v.Object, o.Object)
	}
	return false
}

// MarshalJSON emits the underlying union value without an envelope.
func (v FactValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNumber:
		return json.Marshal(v.Number)
	case ValueString:
		return json.Marshal(v.Str)
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueStringList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case ValueObject:
		if v.Object == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Object)
	}
	return []byte("null"), nil
}

// UnmarshalJSON sniffs the JSON shape and sets the matching kind.
func (v *FactValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*v = FactValue{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "value: unmarshal string")
		}
		*v = StringValue(s)
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return eris.Wrap(err, "value: unmarshal string list")
		}
		*v = FactValue{Kind: ValueStringList, List: list}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return eris.Wrap(err, "value: unmarshal object")
		}
		*v = FactValue{Kind: ValueObject, Object: obj}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return eris.Wrap(err, "value: unmarshal bool")
		}
		*v = BoolValue(b)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return eris.Wrap(err, "value: unmarshal number")
		}
		*v = NumberValue(n)
	}
	return nil
}

var displayPrinter = message.NewPrinter(language.English)

// Display renders the value for humans. Numbers gain digit grouping
// (1000000 -> "1,000,000"); integral numbers drop the decimal point.
func (v FactValue) Display() string {
	switch v.Kind {
	case ValueNumber:
		if v.Number == math.Trunc(v.Number) && math.Abs(v.Number) < 1e15 {
			return displayPrinter.Sprint(number.Decimal(int64(v.Number)))
		}
		return displayPrinter.Sprint(number.Decimal(v.Number))
	case ValueString:
		return v.Str
	case ValueBool:
		if v.Bool {
			return "Yes"
		}
		return "No"
	case ValueStringList:
		return strings.Join(v.List, ", ")
	case ValueObject:
		b, err := json.Marshal(v.Object)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// ParseValue reparses a human-entered string into the structural value it
// represents: JSON literals (numbers, booleans, bracketed lists, objects)
// become their typed form, numbers tolerate digit-grouping commas, and
// everything else stays a string. Used on the override path so that a typed
// "1,200,000" compares equal to an agent-reported 1200000.
func ParseValue(s string) FactValue {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return StringValue("")
	}

	var v FactValue
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil && !v.IsZero() {
		return v
	}

	switch strings.ToLower(trimmed) {
	case "true", "yes":
		return BoolValue(true)
	case "false", "no":
		return BoolValue(false)
	}

	// Grouped number, e.g. "1,200,000" or "$1,200,000". ParseFloat also
	// accepts "NaN" and "Inf", which json.Marshal cannot encode; those stay
	// strings.
	numeric := strings.TrimPrefix(trimmed, "$")
	numeric = strings.ReplaceAll(numeric, ",", "")
	if n, err := strconv.ParseFloat(numeric, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return NumberValue(n)
	}

	return StringValue(trimmed)
}
