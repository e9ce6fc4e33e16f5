package descriptor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/ipc-bridge/internal/domain/descriptor"
)

func TestEncode_WireFormat(t *testing.T) {
	l := descriptor.List{
		descriptor.Function("greet"),
		descriptor.Events("events"),
		descriptor.Namespace("calc", descriptor.Function("add")),
	}
	data, err := descriptor.Encode(l)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"kind":"function","name":"greet"},
		{"kind":"events","name":"events"},
		{"kind":"namespace","name":"calc","values":[{"kind":"function","name":"add"}]}
	]`, string(data))

	back, err := descriptor.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, l, back)
}

func TestEncode_EmptyIsArray(t *testing.T) {
	data, err := descriptor.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"unknown kind", `[{"kind":"class","name":"x"}]`, descriptor.ErrUnknownKind},
		{"empty name", `[{"kind":"function","name":""}]`, descriptor.ErrEmptyName},
		{"nested namespace", `[{"kind":"namespace","name":"a","values":[{"kind":"namespace","name":"b"}]}]`, descriptor.ErrNestedNamespace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := descriptor.Decode([]byte(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := descriptor.Decode([]byte("not json"))
	assert.Error(t, err)
}
