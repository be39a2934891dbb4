package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientFrame(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    ClientFrame
		wantErr error
	}{
		{
			name: "untagged move",
			in:   `[{"x":0,"y":0,"value":"C","modifiedBy":"mallory"}]`,
			want: ClientFrame{Kind: FrameMove, Items: []SolutionItem{{X: 0, Y: 0, Value: "C", ModifiedBy: "mallory"}}},
		},
		{
			name: "untagged cursor",
			in:   ` {"x":3,"y":4} `,
			want: ClientFrame{Kind: FrameCursor, Cursor: Cell{X: 3, Y: 4}},
		},
		{
			name: "tagged move",
			in:   `{"type":"move","items":[{"x":1,"y":2,"value":"A"}]}`,
			want: ClientFrame{Kind: FrameMove, Items: []SolutionItem{{X: 1, Y: 2, Value: "A"}}},
		},
		{
			name: "tagged cursor",
			in:   `{"type":"cursor","x":0,"y":7}`,
			want: ClientFrame{Kind: FrameCursor, Cursor: Cell{X: 0, Y: 7}},
		},
		{name: "empty", in: "  ", wantErr: ErrEmptyFrame},
		{name: "scalar", in: `42`, wantErr: ErrUnknownFrame},
		{name: "object without coordinates", in: `{"value":"A"}`, wantErr: ErrUnknownFrame},
		{name: "tagged cursor missing y", in: `{"type":"cursor","x":1}`, wantErr: ErrMissingCoord},
		{name: "tagged move without items", in: `{"type":"move"}`, wantErr: ErrEmptyFrame},
		{name: "negative cursor", in: `{"x":-1,"y":0}`, wantErr: ErrNegativeCoord},
		{name: "negative move", in: `[{"x":0,"y":-2,"value":"A"}]`, wantErr: ErrNegativeCoord},
		{name: "unknown type", in: `{"type":"chat","x":1,"y":1}`, wantErr: ErrUnknownFrameType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeClientFrame([]byte(tc.in))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeClientFrame_BrokenJSON(t *testing.T) {
	_, err := DecodeClientFrame([]byte(`[{"x":1,`))
	require.Error(t, err)

	_, err = DecodeClientFrame([]byte(`{"x":"one","y":2}`))
	require.Error(t, err)
}

func TestMarshalSolution_OrdersRowByRow(t *testing.T) {
	got, err := MarshalSolution([]SolutionItem{
		{X: 2, Y: 1, Value: "B", ModifiedBy: "bob"},
		{X: 0, Y: 0, Value: "A", ModifiedBy: "alice"},
		{X: 1, Y: 1, Value: "C", ModifiedBy: "alice"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"x":0,"y":0,"value":"A","modifiedBy":"alice"},
		{"x":1,"y":1,"value":"C","modifiedBy":"alice"},
		{"x":2,"y":1,"value":"B","modifiedBy":"bob"}
	]`, got)
}

func TestMarshalSolution_Empty(t *testing.T) {
	got, err := MarshalSolution(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}
