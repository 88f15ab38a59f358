package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posiek07/extensions/internal/schema"
)

func TestCompileField_Primitives(t *testing.T) {
	tests := []struct {
		fieldType schema.FieldType
		want      string
	}{
		{schema.TypeString, `CAST(json_extract_string("data", '$.f') AS VARCHAR)`},
		{schema.TypeNumber, `CAST(json_extract_string("data", '$.f') AS DOUBLE)`},
		{schema.TypeBoolean, `CAST(json_extract_string("data", '$.f') AS BOOLEAN)`},
		{schema.TypeTimestamp, `CAST(json_extract_string("data", '$.f') AS TIMESTAMP)`},
		{schema.TypeReference, `CAST(json_extract_string("data", '$.f') AS VARCHAR)`},
	}
	for _, tc := range tests {
		t.Run(string(tc.fieldType), func(t *testing.T) {
			expr, err := compileField(`"data"`, "$.f", schema.Field{Name: "f", Type: tc.fieldType}, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, expr)
		})
	}
}

func TestCompileField_Geopoint(t *testing.T) {
	expr, err := compileField(`"data"`, "$.loc", schema.Field{Name: "loc", Type: schema.TypeGeopoint}, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`struct_pack(latitude := CAST(json_extract_string("data", '$.loc.latitude') AS DOUBLE), `+
			`longitude := CAST(json_extract_string("data", '$.loc.longitude') AS DOUBLE))`,
		expr)
}

func TestCompileField_Map(t *testing.T) {
	f := schema.Field{Name: "address", Type: schema.TypeMap, Fields: []schema.Field{
		{Name: "city", Type: schema.TypeString},
		{Name: "zip", Type: schema.TypeString},
	}}
	expr, err := compileField(`"data"`, "$.address", f, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`struct_pack(city := CAST(json_extract_string("data", '$.address.city') AS VARCHAR), `+
			`zip := CAST(json_extract_string("data", '$.address.zip') AS VARCHAR))`,
		expr)
}

func TestCompileField_MapOfMap(t *testing.T) {
	f := schema.Field{Name: "a", Type: schema.TypeMap, Fields: []schema.Field{
		{Name: "b", Type: schema.TypeMap, Fields: []schema.Field{
			{Name: "c", Type: schema.TypeNumber},
		}},
	}}
	expr, err := compileField(`"data"`, "$.a", f, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`struct_pack(b := struct_pack(c := CAST(json_extract_string("data", '$.a.b.c') AS DOUBLE)))`,
		expr)
}

func TestCompileField_ArrayOfPrimitive(t *testing.T) {
	f := schema.Field{Name: "tags", Type: schema.TypeArray, Elem: &schema.Field{Type: schema.TypeString}}
	expr, err := compileField(`"data"`, "$.tags", f, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`list_transform(CAST(json_extract("data", '$.tags') AS JSON[]), x -> CAST(json_extract_string(x, '$') AS VARCHAR))`,
		expr)
}

func TestCompileField_ArrayOfMap(t *testing.T) {
	f := schema.Field{Name: "items", Type: schema.TypeArray, Elem: &schema.Field{
		Type: schema.TypeMap,
		Fields: []schema.Field{
			{Name: "sku", Type: schema.TypeString},
			{Name: "qty", Type: schema.TypeNumber},
		},
	}}
	expr, err := compileField(`"data"`, "$.items", f, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`list_transform(CAST(json_extract("data", '$.items') AS JSON[]), x -> `+
			`struct_pack(sku := CAST(json_extract_string(x, '$.sku') AS VARCHAR), `+
			`qty := CAST(json_extract_string(x, '$.qty') AS DOUBLE)))`,
		expr)
}

func TestCompileField_ArrayOfArray(t *testing.T) {
	f := schema.Field{Name: "matrix", Type: schema.TypeArray, Elem: &schema.Field{
		Type: schema.TypeArray,
		Elem: &schema.Field{Type: schema.TypeNumber},
	}}
	expr, err := compileField(`"data"`, "$.matrix", f, 0)
	require.NoError(t, err)
	// Each nesting level gets its own lambda variable.
	assert.Equal(t,
		`list_transform(CAST(json_extract("data", '$.matrix') AS JSON[]), x -> `+
			`list_transform(CAST(json_extract(x, '$') AS JSON[]), x1 -> `+
			`CAST(json_extract_string(x1, '$') AS DOUBLE)))`,
		expr)
}

func TestCompileField_UnknownTypeIsCompilationError(t *testing.T) {
	_, err := compileField(`"data"`, "$.f", schema.Field{Name: "f", Type: schema.FieldType("binary")}, 0)
	require.Error(t, err)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "$.f", cerr.Path)
}
