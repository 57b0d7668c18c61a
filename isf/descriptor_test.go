package isf_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/btf2json/isf"
)

func TestDescriptorMarshal(t *testing.T) {
	tests := []struct {
		name string
		d    *isf.TypeDescriptor
		want string
	}{
		{
			name: "base",
			d:    &isf.TypeDescriptor{Kind: isf.DescrBase, Name: "int"},
			want: `{"kind":"base","name":"int"}`,
		},
		{
			name: "pointer",
			d: &isf.TypeDescriptor{
				Kind:    isf.DescrPointer,
				Subtype: &isf.TypeDescriptor{Kind: isf.DescrStruct, Name: "task_struct"},
			},
			want: `{"kind":"pointer","subtype":{"kind":"struct","name":"task_struct"}}`,
		},
		{
			name: "array",
			d: &isf.TypeDescriptor{
				Kind:    isf.DescrArray,
				Count:   16,
				Subtype: &isf.TypeDescriptor{Kind: isf.DescrBase, Name: "char"},
			},
			want: `{"kind":"array","count":16,"subtype":{"kind":"base","name":"char"}}`,
		},
		{
			name: "bitfield keys its subtype as type",
			d: &isf.TypeDescriptor{
				Kind:        isf.DescrBitfield,
				BitPosition: 3,
				BitLength:   2,
				Subtype:     &isf.TypeDescriptor{Kind: isf.DescrBase, Name: "unsigned int"},
			},
			want: `{"kind":"bitfield","bit_position":3,"bit_length":2,"type":{"kind":"base","name":"unsigned int"}}`,
		},
		{
			name: "function carries nothing",
			d:    &isf.TypeDescriptor{Kind: isf.DescrFunction},
			want: `{"kind":"function"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.d)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var back isf.TypeDescriptor
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.d, &back)
		})
	}
}

func TestDescriptorUnmarshalValidation(t *testing.T) {
	bad := []string{
		`{"kind":"array","subtype":{"kind":"base","name":"char"}}`, // no count
		`{"kind":"pointer"}`, // no subtype
		`{"kind":"bitfield","bit_position":1,"bit_length":2}`, // no type
		`{"kind":"struct"}`,                    // no name
		`{"kind":"galaxy","name":"andromeda"}`, // unknown kind
	}
	for _, s := range bad {
		var d isf.TypeDescriptor
		assert.Error(t, json.Unmarshal([]byte(s), &d), s)
	}
}

func TestDescriptorTerminal(t *testing.T) {
	d := &isf.TypeDescriptor{
		Kind:  isf.DescrArray,
		Count: 4,
		Subtype: &isf.TypeDescriptor{
			Kind:    isf.DescrPointer,
			Subtype: &isf.TypeDescriptor{Kind: isf.DescrUnion, Name: "thread_union"},
		},
	}
	assert.Equal(t, isf.DescrUnion, d.Terminal().Kind)
	assert.Equal(t, "union thread_union", d.String())

	fn := &isf.TypeDescriptor{
		Kind:    isf.DescrPointer,
		Subtype: &isf.TypeDescriptor{Kind: isf.DescrFunction},
	}
	assert.Equal(t, "function", fn.String())
}

func TestNewVoid(t *testing.T) {
	d := isf.NewVoid()
	assert.Equal(t, isf.DescrBase, d.Kind)
	assert.Equal(t, "void", d.Name)
}

func TestParseDescriptor(t *testing.T) {
	d, err := isf.ParseDescriptor(`{"kind":"struct","name":"task_struct"}`)
	require.NoError(t, err)
	assert.Equal(t, "task_struct", d.Name)

	_, err = isf.ParseDescriptor(`{{`)
	assert.Error(t, err)
}
