// Package schema compiles declared parameter shapes into structural JSON
// Schema descriptions and validates call arguments against them.
//
// Compilation happens exactly once per capability, at registration time;
// registries store the compiled schema and reuse it for every call.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Schema is a structural JSON Schema subset: enough to describe the
// argument shapes a capability can declare, nothing more.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	AnyOf                []*Schema          `json:"anyOf,omitempty"`
}

// Param declares one named parameter of a capability handler. Type is the
// Go type of the expected value; a nil Type accepts any value. HasDefault
// marks the parameter optional.
type Param struct {
	Name        string
	Type        reflect.Type
	Description string
	HasDefault  bool
}

// TypeOf is a convenience for building Param.Type from a sample value,
// e.g. TypeOf(0) for integer or TypeOf("") for string.
func TypeOf(v interface{}) reflect.Type {
	return reflect.TypeOf(v)
}

// Compile builds the object schema for a parameter list. The result is a
// pure function of the declared shapes: compiling the same list twice
// yields structurally equal schemas.
func Compile(params []Param) *Schema {
	s := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema, len(params)),
	}
	for _, p := range params {
		prop := TypeSchema(p.Type)
		if p.Description != "" {
			// Copy before annotating so shared sub-schemas stay pristine.
			annotated := *prop
			annotated.Description = p.Description
			prop = &annotated
		}
		s.Properties[p.Name] = prop
		if !p.HasDefault {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// TypeSchema maps a Go type to its structural schema:
//
//	string                -> {"type":"string"}
//	int kinds             -> {"type":"integer"}
//	float kinds           -> {"type":"number"}
//	bool                  -> {"type":"boolean"}
//	slice/array of T      -> {"type":"array","items":schema(T)}
//	map[string]T          -> {"type":"object","additionalProperties":schema(T)}
//	*T                    -> {"anyOf":[schema(T),{"type":"null"}]}
//	struct                -> {"type":"object","properties":...} recursively
//	nil / interface{}     -> {} (accepts any value)
func TypeSchema(t reflect.Type) *Schema {
	if t == nil {
		return &Schema{}
	}
	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: "array", Items: TypeSchema(t.Elem())}
	case reflect.Map:
		return &Schema{Type: "object", AdditionalProperties: TypeSchema(t.Elem())}
	case reflect.Ptr:
		return &Schema{AnyOf: []*Schema{TypeSchema(t.Elem()), {Type: "null"}}}
	case reflect.Struct:
		return structSchema(t)
	case reflect.Interface:
		return &Schema{}
	default:
		// Channels, funcs and the like have no wire representation.
		return &Schema{}
	}
}

func structSchema(t reflect.Type) *Schema {
	s := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema, t.NumField()),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		name, omitempty, skip := parseJSONTag(f)
		if skip {
			continue
		}
		s.Properties[name] = TypeSchema(f.Type)
		if !omitempty && f.Type.Kind() != reflect.Ptr {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func parseJSONTag(f reflect.StructField) (name string, omitempty, skip bool) {
	name = f.Name
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", false, true
	}
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

// MarshalRaw serializes a compiled schema to the json.RawMessage shape the
// wire descriptors carry.
func MarshalRaw(s *Schema) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// Validate checks args against a compiled object schema: every required
// property must be present and every supplied value must match its
// declared shape. The returned error carries the first violation found.
func Validate(s *Schema, args map[string]interface{}) error {
	if s == nil {
		return nil
	}
	for _, req := range s.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("missing required argument: %q", req)
		}
	}
	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			if s.AdditionalProperties != nil {
				if err := validateValue(s.AdditionalProperties, value, name); err != nil {
					return err
				}
			}
			continue
		}
		if err := validateValue(prop, value, name); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(s *Schema, value interface{}, path string) error {
	if s == nil {
		return nil
	}
	if len(s.AnyOf) > 0 {
		for _, alt := range s.AnyOf {
			if validateValue(alt, value, path) == nil {
				return nil
			}
		}
		return fmt.Errorf("argument %q matches no allowed shape", path)
	}

	switch s.Type {
	case "":
		return nil
	case "null":
		if value != nil {
			return fmt.Errorf("argument %q must be null", path)
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q must be a string", path)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", path)
		}
	case "number":
		if !isNumber(value) {
			return fmt.Errorf("argument %q must be a number", path)
		}
	case "integer":
		if !isInteger(value) {
			return fmt.Errorf("argument %q must be an integer", path)
		}
	case "array":
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("argument %q must be an array", path)
		}
		for i, item := range items {
			if err := validateValue(s.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("argument %q must be an object", path)
		}
		for _, req := range s.Required {
			if _, ok := obj[req]; !ok {
				return fmt.Errorf("missing required field: %q", path+"."+req)
			}
		}
		for key, val := range obj {
			if prop, ok := s.Properties[key]; ok {
				if err := validateValue(prop, val, path+"."+key); err != nil {
					return err
				}
			} else if s.AdditionalProperties != nil {
				if err := validateValue(s.AdditionalProperties, val, path+"."+key); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("argument %q has unsupported schema type %q", path, s.Type)
	}
	return nil
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}

func isInteger(v interface{}) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	case float32:
		return float64(n) == float64(int64(n))
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}
