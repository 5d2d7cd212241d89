package openapi

import (
	"reflect"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// TypeMapping maps Go field types to OpenAPI type/format pairs.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean, object, array
	Format string // OpenAPI format: int32, int64, float, double, date-time, etc.
}

var timeType = reflect.TypeOf(time.Time{})

// MapGoType converts a Go type to an OpenAPI type mapping. Pointers are
// dereferenced; unknown kinds fall back to {"string", ""}.
func MapGoType(t reflect.Type) TypeMapping {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return TypeMapping{"string", "date-time"}
	}

	switch t.Kind() {
	case reflect.Bool:
		return TypeMapping{"boolean", ""}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return TypeMapping{"integer", "int32"}
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return TypeMapping{"integer", "int64"}
	case reflect.Float32:
		return TypeMapping{"number", "float"}
	case reflect.Float64:
		return TypeMapping{"number", "double"}
	case reflect.Slice, reflect.Array:
		return TypeMapping{"array", ""}
	case reflect.Struct, reflect.Map:
		return TypeMapping{"object", ""}
	default:
		return TypeMapping{"string", ""}
	}
}

// structSchema builds an object schema from the exported, JSON-visible
// fields of a struct type. Field names follow the json tags.
func structSchema(t reflect.Type) *openapi3.Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	s := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: openapi3.Schemas{},
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		s.Properties[name] = &openapi3.SchemaRef{Value: fieldSchema(f.Type)}
		if !strings.Contains(opts, "omitempty") && f.Type.Kind() != reflect.Pointer {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func fieldSchema(t reflect.Type) *openapi3.Schema {
	m := MapGoType(t)
	s := &openapi3.Schema{Type: &openapi3.Types{m.Type}}
	if m.Format != "" {
		s.Format = m.Format
	}
	if m.Type == "array" {
		s.Items = &openapi3.SchemaRef{Value: fieldSchema(t.Elem())}
	}
	if t.Kind() == reflect.Pointer {
		s.Nullable = true
	}
	return s
}
