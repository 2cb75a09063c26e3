// Package inspector turns tagged component structs into display fields for
// diagnostic tooling.
package inspector

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Widget types for rendering fields.
type Widget int

const (
	WidgetAuto Widget = iota
	WidgetLabel
	WidgetBar
	WidgetBool
	WidgetSkip
)

var widgetNames = [...]string{"auto", "label", "bar", "bool", "skip"}

// String returns the tag name of the widget.
func (w Widget) String() string {
	if int(w) >= 0 && int(w) < len(widgetNames) {
		return widgetNames[w]
	}
	return "auto"
}

// MarshalText encodes the widget by name.
func (w Widget) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// Field represents a component field with rendering hints.
type Field struct {
	Component string            `json:"component"`
	Name      string            `json:"name"`
	Value     interface{}       `json:"value"`
	Text      string            `json:"text"`
	Widget    Widget            `json:"widget"`
	Options   map[string]string `json:"options,omitempty"`
}

// ParseTag parses an inspect struct tag.
// Format: `inspect:"widget[,option:value...]"`
// Examples:
//
//	`inspect:"bar"`
//	`inspect:"bar,max:200"`
//	`inspect:"label,fmt:%.1f"`
//	`inspect:"skip"`
func ParseTag(tag string) (Widget, map[string]string) {
	options := make(map[string]string)

	if tag == "" {
		return WidgetAuto, options
	}

	parts := strings.Split(tag, ",")
	widgetStr := strings.TrimSpace(parts[0])

	var widget Widget
	switch widgetStr {
	case "label":
		widget = WidgetLabel
	case "bar":
		widget = WidgetBar
	case "bool":
		widget = WidgetBool
	case "skip":
		widget = WidgetSkip
	default:
		widget = WidgetAuto
	}

	// Parse options
	for _, part := range parts[1:] {
		kv := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(kv) == 2 {
			options[kv[0]] = kv[1]
		}
	}

	return widget, options
}

// ExtractFields uses reflection to extract all fields from a component.
// Fields are labelled with the component's type name.
func ExtractFields(component interface{}) []Field {
	v := reflect.ValueOf(component)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	var fields []Field

	for i := 0; i < v.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)

		// Skip unexported fields
		if !sf.IsExported() {
			continue
		}

		tag := sf.Tag.Get("inspect")
		widget, options := ParseTag(tag)

		if widget == WidgetSkip {
			continue
		}

		// Auto-detect widget if not specified
		if widget == WidgetAuto {
			widget = autoDetectWidget(fv)
		}

		value := fv.Interface()
		fields = append(fields, Field{
			Component: t.Name(),
			Name:      sf.Name,
			Value:     value,
			Text:      FormatValue(value, options["fmt"]),
			Widget:    widget,
			Options:   options,
		})
	}

	return fields
}

// ExtractAll concatenates the fields of several components.
func ExtractAll(components ...interface{}) []Field {
	var out []Field
	for _, c := range components {
		out = append(out, ExtractFields(c)...)
	}
	return out
}

// autoDetectWidget chooses a widget based on the field type.
func autoDetectWidget(v reflect.Value) Widget {
	switch v.Kind() {
	case reflect.Bool:
		return WidgetBool
	default:
		return WidgetLabel
	}
}

// FormatValue formats a field value as a string.
func FormatValue(value interface{}, fmtStr string) string {
	if fmtStr == "" {
		switch v := value.(type) {
		case float32:
			return fmt.Sprintf("%.2f", v)
		case float64:
			return fmt.Sprintf("%.2f", v)
		case fmt.Stringer:
			return v.String()
		default:
			return fmt.Sprintf("%v", value)
		}
	}
	return fmt.Sprintf(fmtStr, value)
}

// GetMax returns the max option as a float, defaulting to 1.0.
func GetMax(options map[string]string) float64 {
	if maxStr, ok := options["max"]; ok {
		if max, err := strconv.ParseFloat(maxStr, 64); err == nil {
			return max
		}
	}
	return 1.0
}

// GetFloatValue extracts a float64 from various numeric types.
func GetFloatValue(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), true
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), true
		}
		return 0, false
	}
}

// Fraction returns the field's value relative to its max option, in [0, 1],
// for bar widgets.
func (f Field) Fraction() float64 {
	v, ok := GetFloatValue(f.Value)
	if !ok {
		return 0
	}
	max := GetMax(f.Options)
	if max <= 0 {
		return 0
	}
	r := v / max
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
