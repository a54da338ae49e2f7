package schema

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeSchema(t *testing.T) {
	cases := []struct {
		name string
		typ  reflect.Type
		want *Schema
	}{
		{"String", TypeOf(""), &Schema{Type: "string"}},
		{"Int", TypeOf(0), &Schema{Type: "integer"}},
		{"Int64", TypeOf(int64(0)), &Schema{Type: "integer"}},
		{"Float", TypeOf(0.0), &Schema{Type: "number"}},
		{"Bool", TypeOf(false), &Schema{Type: "boolean"}},
		{"Nil", nil, &Schema{}},
		{"Interface", reflect.TypeOf((*interface{})(nil)).Elem(), &Schema{}},
		{"Slice", TypeOf([]string{}), &Schema{Type: "array", Items: &Schema{Type: "string"}}},
		{"Map", TypeOf(map[string]int{}), &Schema{Type: "object", AdditionalProperties: &Schema{Type: "integer"}}},
		{"Pointer", TypeOf((*string)(nil)), &Schema{AnyOf: []*Schema{{Type: "string"}, {Type: "null"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TypeSchema(tc.typ))
		})
	}
}

func TestStructSchema(t *testing.T) {
	type inner struct {
		Label string `json:"label"`
	}
	type payload struct {
		Name     string  `json:"name"`
		Count    int     `json:"count,omitempty"`
		Ratio    float64 `json:"-"`
		Optional *inner  `json:"optional"`
		hidden   bool
	}
	_ = payload{hidden: true}

	s := TypeSchema(TypeOf(payload{}))
	require.Equal(t, "object", s.Type)
	assert.Len(t, s.Properties, 3)
	assert.Equal(t, &Schema{Type: "string"}, s.Properties["name"])
	assert.Equal(t, &Schema{Type: "integer"}, s.Properties["count"])
	assert.NotContains(t, s.Properties, "Ratio")
	assert.NotContains(t, s.Properties, "hidden")

	// omitempty and pointer fields are optional.
	assert.Equal(t, []string{"name"}, s.Required)
	require.NotNil(t, s.Properties["optional"])
	assert.Len(t, s.Properties["optional"].AnyOf, 2)
}

func TestCompile(t *testing.T) {
	params := []Param{
		{Name: "a", Type: TypeOf(0), Description: "first"},
		{Name: "b", Type: TypeOf(""), HasDefault: true},
	}

	s := Compile(params)
	require.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"a"}, s.Required)
	assert.Equal(t, "first", s.Properties["a"].Description)
	assert.Equal(t, "integer", s.Properties["a"].Type)
	assert.Equal(t, "string", s.Properties["b"].Type)

	// Compilation is a pure function of the declared shapes.
	assert.Equal(t, s, Compile(params))
}

func TestValidate(t *testing.T) {
	s := Compile([]Param{
		{Name: "n", Type: TypeOf(0)},
		{Name: "tags", Type: TypeOf([]string{}), HasDefault: true},
		{Name: "note", Type: TypeOf((*string)(nil)), HasDefault: true},
	})

	t.Run("Valid", func(t *testing.T) {
		err := Validate(s, map[string]interface{}{
			"n":    float64(3),
			"tags": []interface{}{"x", "y"},
		})
		assert.NoError(t, err)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		err := Validate(s, map[string]interface{}{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing required argument: "n"`)
	})

	t.Run("WholeFloatIsInteger", func(t *testing.T) {
		assert.NoError(t, Validate(s, map[string]interface{}{"n": float64(7)}))
		assert.Error(t, Validate(s, map[string]interface{}{"n": 7.5}))
	})

	t.Run("WrongElementType", func(t *testing.T) {
		err := Validate(s, map[string]interface{}{
			"n":    float64(1),
			"tags": []interface{}{"ok", 3},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tags[1]")
	})

	t.Run("NullableAcceptsNullAndValue", func(t *testing.T) {
		assert.NoError(t, Validate(s, map[string]interface{}{"n": float64(1), "note": nil}))
		assert.NoError(t, Validate(s, map[string]interface{}{"n": float64(1), "note": "hi"}))
		assert.Error(t, Validate(s, map[string]interface{}{"n": float64(1), "note": 4.2}))
	})

	t.Run("UndeclaredArgumentsPass", func(t *testing.T) {
		assert.NoError(t, Validate(s, map[string]interface{}{"n": float64(1), "extra": true}))
	})
}
