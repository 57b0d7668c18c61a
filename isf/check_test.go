package isf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/btf2json/isf"
)

func checkDoc() *isf.Document {
	return &isf.Document{
		BaseTypes: map[string]*isf.Base{
			"int":  {Size: 4, Signed: true, Kind: isf.BaseInt, Endian: isf.Little},
			"void": {Kind: isf.BaseVoid, Endian: isf.Little},
		},
		Enums: map[string]*isf.Enum{
			"system_states": {Size: 4, Base: "int"},
		},
		UserTypes: map[string]*isf.User{
			"task_struct":  {Kind: isf.KindStruct, Size: 16, Fields: map[string]*isf.Field{}},
			"thread_union": {Kind: isf.KindUnion, Size: 8, Fields: map[string]*isf.Field{}},
		},
		Symbols: map[string]*isf.Symbol{},
	}
}

func TestFixSymbolTypesKeepsDefined(t *testing.T) {
	doc := checkDoc()
	doc.Symbols["init_task"] = &isf.Symbol{
		Address: 0xffffffff81001000,
		Type:    &isf.TypeDescriptor{Kind: isf.DescrStruct, Name: "task_struct"},
	}
	doc.Symbols["jiffies"] = &isf.Symbol{
		Address: 0xffffffff81002000,
		Type: &isf.TypeDescriptor{
			Kind:    isf.DescrPointer,
			Subtype: &isf.TypeDescriptor{Kind: isf.DescrBase, Name: "int"},
		},
	}

	require.NoError(t, doc.FixSymbolTypes())
	assert.Equal(t, "task_struct", doc.Symbols["init_task"].Type.Name)
}

func TestFixSymbolTypesRepairsMissing(t *testing.T) {
	doc := checkDoc()
	doc.Symbols["tcp_hashinfo"] = &isf.Symbol{
		Address: 0xffffffff81003000,
		Type:    &isf.TypeDescriptor{Kind: isf.DescrStruct, Name: "inet_hashinfo"},
	}
	doc.Symbols["init_task"] = &isf.Symbol{
		Address: 0xffffffff81001000,
		Type:    &isf.TypeDescriptor{Kind: isf.DescrStruct, Name: "task_struct"},
	}

	// the repair reports, but the document stays usable
	assert.Error(t, doc.FixSymbolTypes())
	assert.Equal(t, isf.NewVoid(), doc.Symbols["tcp_hashinfo"].Type)
	assert.Equal(t, "task_struct", doc.Symbols["init_task"].Type.Name)
}

func TestFixSymbolTypesKindMismatch(t *testing.T) {
	doc := checkDoc()
	// thread_union is defined as a union, a struct reference does not count
	doc.Symbols["init_thread_union"] = &isf.Symbol{
		Type: &isf.TypeDescriptor{Kind: isf.DescrStruct, Name: "thread_union"},
	}

	assert.Error(t, doc.FixSymbolTypes())
	assert.Equal(t, isf.NewVoid(), doc.Symbols["init_thread_union"].Type)
}

func TestFixSymbolTypesFunctionAlwaysDefined(t *testing.T) {
	doc := checkDoc()
	doc.Symbols["do_exit"] = &isf.Symbol{
		Type: &isf.TypeDescriptor{
			Kind:    isf.DescrPointer,
			Subtype: &isf.TypeDescriptor{Kind: isf.DescrFunction},
		},
	}

	assert.NoError(t, doc.FixSymbolTypes())
}

func TestCheckUserTypesDoesNotMutate(t *testing.T) {
	doc := checkDoc()
	broken := &isf.TypeDescriptor{Kind: isf.DescrStruct, Name: "no_such_struct"}
	doc.UserTypes["task_struct"].Fields["cred"] = &isf.Field{Type: broken, Offset: 8}

	assert.Error(t, doc.CheckUserTypes())
	// diagnostic only: the field keeps its original descriptor
	assert.Same(t, broken, doc.UserTypes["task_struct"].Fields["cred"].Type)
}

func TestCheckUserTypesAllDefined(t *testing.T) {
	doc := checkDoc()
	doc.UserTypes["task_struct"].Fields["pid"] = &isf.Field{
		Type: &isf.TypeDescriptor{Kind: isf.DescrBase, Name: "int"},
	}
	doc.UserTypes["task_struct"].Fields["state"] = &isf.Field{
		Type: &isf.TypeDescriptor{Kind: isf.DescrEnum, Name: "system_states"},
	}

	assert.NoError(t, doc.CheckUserTypes())
}
