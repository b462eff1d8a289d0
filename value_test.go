package schemaseq_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("PST", -8*60*60))

	tests := []struct {
		name       string
		descriptor string
		in         interface{}
		want       interface{}
		wantErr    bool
	}{
		{name: "int", descriptor: "int", in: 7, want: int64(7)},
		{name: "int from uint8", descriptor: "int", in: uint8(7), want: int64(7)},
		{name: "int from whole float", descriptor: "int", in: 7.0, want: int64(7)},
		{name: "int from fraction", descriptor: "int", in: 7.5, wantErr: true},
		{name: "int from json number", descriptor: "int?", in: json.Number("9007199254740993"), want: int64(9007199254740993)},
		{name: "int from text", descriptor: "int", in: "seven", wantErr: true},
		{name: "double from int", descriptor: "double", in: 2, want: float64(2)},
		{name: "float from float32", descriptor: "float", in: float32(0.25), want: float64(0.25)},
		{name: "bool from int64", descriptor: "bool", in: int64(1), want: true},
		{name: "string from bytes", descriptor: "string", in: []byte("a"), want: "a"},
		{name: "date", descriptor: "date", in: at, want: at.UTC()},
		{name: "date from text", descriptor: "date", in: "2024-03-01T20:30:00Z", want: at.UTC()},
		{name: "data from string", descriptor: "data", in: "raw", want: []byte("raw")},
		{name: "data from int", descriptor: "data", in: 1, wantErr: true},
		{name: "list", descriptor: "int[]", in: []int{1, 2}, want: []interface{}{int64(1), int64(2)}},
		{name: "list of interfaces", descriptor: "string[]?", in: []interface{}{"a", nil}, want: []interface{}{"a", nil}},
		{name: "list from scalar", descriptor: "int[]", in: 1, wantErr: true},
		{name: "nil", descriptor: "int?", in: nil, want: nil},
		{name: "unknown descriptor", descriptor: "User", in: "u1", want: "u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schemaseq.NormalizeValue(tt.descriptor, tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_Normalize(t *testing.T) {
	s := schemaseq.Schema{
		Name:       "User",
		Properties: map[string]string{"id": "int", "name": "string"},
	}

	in := schemaseq.Object{"id": 1, "name": "Ada"}
	got, err := s.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, schemaseq.Object{"id": int64(1), "name": "Ada"}, got)
	assert.Equal(t, 1, in["id"])

	_, err = s.Normalize(schemaseq.Object{"id": "one", "name": "Ada"})
	require.Error(t, err)
	assert.Equal(t, errors.EInvalid, errors.ErrorCode(err))
	assert.Equal(t, `record type "User" property "id" is not a valid int`, errors.ErrorMessage(err))
}

func TestUnmarshalObject(t *testing.T) {
	s := schemaseq.Schema{
		Name: "Event",
		Properties: map[string]string{
			"count":   "int",
			"ratio":   "double",
			"at":      "date",
			"payload": "data",
			"seen":    "date[]",
		},
	}
	at := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)

	obj, err := s.Normalize(schemaseq.Object{
		"count":   int64(1) << 60,
		"ratio":   1.0,
		"at":      at,
		"payload": []byte{0, 1, 2},
		"seen":    []time.Time{at},
	})
	require.NoError(t, err)

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	got, err := schemaseq.UnmarshalObject(s, data)
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	_, err = schemaseq.UnmarshalObject(s, []byte(`{"at":"yesterday"}`))
	require.Error(t, err)
}

func TestUnmarshalValue(t *testing.T) {
	got, err := schemaseq.UnmarshalValue("data[]", []byte(`["cmF3",null]`))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{[]byte("raw"), nil}, got)

	_, err = schemaseq.UnmarshalValue("int[]", []byte(`{"a":1}`))
	require.Error(t, err)
}
