package util

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Tool argument schemas are plain maps in a minimal JSON-Schema dialect: an
// "object" schema carrying "properties" (field name to {"type", "description"})
// plus an optional "required" name list. CreateSchema reflects one from a Go
// struct; ValidateParameters checks decoded JSON arguments against one.

// ValidationError reports a single argument that failed schema validation.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema reflects an argument schema from a struct value. Exported
// fields become properties named after their json tag (falling back to the
// Go field name); a "description" tag becomes the property description.
// Fields count as required unless they are pointers or tagged omitempty.
// Non-struct values produce an empty object schema.
func CreateSchema(v any) map[string]any {
	properties := map[string]any{}
	required := []string{}

	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)

			name, omitEmpty, ok := propertyName(f)
			if !ok {
				continue
			}

			prop := map[string]any{"type": schemaType(f.Type)}
			if desc := f.Tag.Get("description"); desc != "" {
				prop["description"] = desc
			}
			properties[name] = prop

			if !omitEmpty && f.Type.Kind() != reflect.Pointer {
				required = append(required, name)
			}
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// propertyName resolves the schema property name for a struct field from its
// json tag. ok is false for unexported and json:"-" fields.
func propertyName(f reflect.StructField) (name string, omitEmpty, ok bool) {
	if !f.IsExported() {
		return "", false, false
	}

	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}

	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}

	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == "omitempty" {
			omitEmpty = true
		}
	}

	return name, omitEmpty, true
}

// schemaType maps a Go type onto its JSON schema type name. Unhandled kinds
// fall back to string.
func schemaType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Pointer:
		return schemaType(t.Elem())
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// ValidateParameters checks decoded JSON arguments against a schema: every
// required field must be present, and present fields must match their
// declared type. Fields without a property entry pass through unchecked.
// The first violation is returned as a *ValidationError.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	for _, name := range requiredFields(schema) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range params {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}

		want, _ := prop["type"].(string)
		if !matchesType(value, want) {
			return &ValidationError{
				Field:   name,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", want, value),
			}
		}
	}

	return nil
}

// requiredFields tolerates both the reflected shape ([]string) and the
// JSON-decoded shape ([]any).
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		names := make([]string, 0, len(req))
		for _, r := range req {
			if name, ok := r.(string); ok {
				names = append(names, name)
			}
		}
		return names
	default:
		return nil
	}
}

// matchesType reports whether a decoded JSON value satisfies the schema type.
// nil passes every type and unknown type names pass every value.
func matchesType(value any, want string) bool {
	if value == nil {
		return true
	}

	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		return isInteger(value)
	case "number":
		return isNumber(value)
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		// encoding/json decodes every number as float64.
		return v == math.Trunc(v)
	default:
		return false
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
