package schemaseq

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/spf13/cast"
)

// Every store hands values back as the Go type its descriptor maps to:
//
//	int, long     int64
//	float, double float64
//	bool          bool
//	string        string
//	date          time.Time in UTC
//	data          []byte
//
// A list is a []interface{} of its element type. Values of descriptors not
// listed here are stored as given.

// Normalize returns a copy of obj with every declared property converted
// to the Go type of its descriptor. It reports an EInvalid error for a
// value that cannot be converted.
func (s Schema) Normalize(obj Object) (Object, error) {
	if obj == nil {
		return nil, nil
	}

	out := make(Object, len(obj))
	for field, v := range obj {
		descriptor, ok := s.Properties[field]
		if !ok {
			out[field] = v
			continue
		}

		nv, err := NormalizeValue(descriptor, v)
		if err != nil {
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("record type %q property %q is not a valid %s", s.Name, field, descriptor),
				Err:  err,
			}
		}
		out[field] = nv
	}
	return out, nil
}

// NormalizeValue converts v to the Go type of descriptor. A nil value stays
// nil.
func NormalizeValue(descriptor string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	base := BaseType(descriptor)
	if !IsList(descriptor) {
		return normalizeScalar(base, v)
	}

	if list, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, e := range list {
			ne, err := normalizeElem(base, e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = ne
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unable to cast %#v of type %T to a list", v, v)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		ne, err := normalizeElem(base, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = ne
	}
	return out, nil
}

func normalizeElem(base string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return normalizeScalar(base, v)
}

func normalizeScalar(base string, v interface{}) (interface{}, error) {
	switch strings.ToLower(base) {
	case "int", "long":
		switch n := v.(type) {
		case json.Number:
			return n.Int64()
		case float64:
			return floatToInt64(n)
		case float32:
			return floatToInt64(float64(n))
		}
		return cast.ToInt64E(v)
	case "float", "double":
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
		return cast.ToFloat64E(v)
	case "bool":
		switch n := v.(type) {
		case int64:
			return n != 0, nil
		case json.Number:
			return n.String() != "0", nil
		}
		return cast.ToBoolE(v)
	case "string":
		return cast.ToStringE(v)
	case "date":
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case "data":
		switch b := v.(type) {
		case []byte:
			return append([]byte{}, b...), nil
		case string:
			return []byte(b), nil
		}
		return nil, fmt.Errorf("unable to cast %#v of type %T to []byte", v, v)
	}

	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	}
	return v, nil
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

// UnmarshalObject decodes the JSON encoding of a normalized object. Dates
// are read as RFC 3339 strings and data as base64 strings, the way
// encoding/json writes them.
func UnmarshalObject(s Schema, data []byte) (Object, error) {
	var raw map[string]interface{}
	if err := unmarshalNumbers(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	obj := make(Object, len(raw))
	for field, v := range raw {
		descriptor, ok := s.Properties[field]
		if !ok {
			continue
		}

		nv, err := fromJSON(descriptor, v)
		if err != nil {
			return nil, fmt.Errorf("decoding %s.%s: %w", s.Name, field, err)
		}
		obj[field] = nv
	}
	return obj, nil
}

// UnmarshalValue decodes the JSON encoding of a single normalized value.
func UnmarshalValue(descriptor string, data []byte) (interface{}, error) {
	var raw interface{}
	if err := unmarshalNumbers(data, &raw); err != nil {
		return nil, err
	}
	return fromJSON(descriptor, raw)
}

func unmarshalNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func fromJSON(descriptor string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	base := BaseType(descriptor)
	if !IsList(descriptor) {
		return scalarFromJSON(base, v)
	}

	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON array, got %T", v)
	}
	out := make([]interface{}, len(list))
	for i, e := range list {
		if e == nil {
			continue
		}
		ne, err := scalarFromJSON(base, e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = ne
	}
	return out, nil
}

func scalarFromJSON(base string, v interface{}) (interface{}, error) {
	str, isString := v.(string)
	switch {
	case isString && strings.EqualFold(base, "data"):
		return base64.StdEncoding.DecodeString(str)
	case isString && strings.EqualFold(base, "date"):
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	}
	return normalizeScalar(base, v)
}
