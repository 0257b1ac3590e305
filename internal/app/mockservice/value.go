package mockservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindBytes:
		return "bytes"
	}
	return "unknown"
}

// Value is a decoded body. The set of implementations is closed: Null, Bool,
// Number, String, Array, *Object and Bytes. A nil Value means "no body".
type Value interface {
	Kind() Kind
	json.Marshaler
	isValue()
}

type Null struct{}

type Bool bool

// Number keeps the literal it was decoded from so that serialisation is
// stable; equality is numeric.
type Number string

type String string

type Array []Value

type Bytes []byte

// Object is a mapping that remembers key insertion order.
type Object struct {
	keys   []string
	fields map[string]Value
}

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Number) Kind() Kind  { return KindNumber }
func (String) Kind() Kind  { return KindString }
func (Array) Kind() Kind   { return KindArray }
func (*Object) Kind() Kind { return KindObject }
func (Bytes) Kind() Kind   { return KindBytes }

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Number) isValue()  {}
func (String) isValue()  {}
func (Array) isValue()   {}
func (*Object) isValue() {}
func (Bytes) isValue()   {}

func NewObject() *Object {
	return &Object{fields: map[string]Value{}}
}

// Set adds or replaces key. Replacing keeps the original position.
func (o *Object) Set(key string, v Value) *Object {
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
	return o
}

func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

func (o *Object) Len() int {
	return len(o.keys)
}

func (n Number) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(string(n))
}

// Equal compares numerically, so 1, 1.0 and 1e0 are the same number.
func (n Number) Equal(other Number) bool {
	a, errA := n.Decimal()
	b, errB := other.Decimal()
	if errA != nil || errB != nil {
		return n == other
	}
	return a.Equal(b)
}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (b Bool) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatBool(bool(b))), nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !gjson.Valid(string(n)) {
		return nil, fmt.Errorf("invalid number literal %q", string(n))
	}
	return []byte(n), nil
}

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(b))
}

func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(&buf, v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := writeValue(&buf, o.fields[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// ParseJSON decodes data into a Value, keeping object key order.
func ParseJSON(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("body is not valid JSON")
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null{}
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	case gjson.Number:
		return Number(r.Raw)
	case gjson.String:
		return String(r.Str)
	}

	if r.IsArray() {
		arr := Array{}
		r.ForEach(func(_, v gjson.Result) bool {
			arr = append(arr, fromResult(v))
			return true
		})
		return arr
	}

	obj := NewObject()
	r.ForEach(func(k, v gjson.Result) bool {
		obj.Set(k.Str, fromResult(v))
		return true
	})
	return obj
}

// Stringify renders a scalar the way regex rules see it.
func Stringify(v Value) (string, bool) {
	switch val := v.(type) {
	case Null:
		return "null", true
	case Bool:
		return strconv.FormatBool(bool(val)), true
	case Number:
		return string(val), true
	case String:
		return string(val), true
	case Bytes:
		return string(val), true
	}
	return "", false
}

// Describe renders v for diagnostics.
func Describe(v Value) string {
	if v == nil {
		return "<none>"
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.Kind())
	}
	return string(b)
}
