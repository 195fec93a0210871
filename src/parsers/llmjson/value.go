// backend/src/parsers/llmjson/value.go
package llmjson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind discriminates the shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	}
	return "invalid"
}

type member struct {
	key string
	val *Value
}

// Value is a structured value recovered from generator text. Model responses
// arrive as loosely-typed JSON; instead of duck-typed map access the callers go
// through accessors that return an explicit error on any shape mismatch.
// Object members keep their document order so that every walk over a recovered
// value is deterministic.
type Value struct {
	kind    Kind
	members []member       // object members, document order
	index   map[string]int // key -> position in members
	items   []*Value       // array elements
	str     string
	num     json.Number
	boolean bool
}

// Kind returns the shape tag of v.
func (v *Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the JSON null value.
func (v *Value) IsNull() bool { return v.kind == KindNull }

// Keys returns the object keys in document order.
func (v *Value) Keys() ([]string, error) {
	if v.kind != KindObject {
		return nil, fmt.Errorf("llmjson: Keys on %s value", v.kind)
	}
	keys := make([]string, len(v.members))
	for i, m := range v.members {
		keys[i] = m.key
	}
	return keys, nil
}

// Field returns the named object member, or false if the key is absent.
func (v *Value) Field(key string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	i, ok := v.index[key]
	if !ok {
		return nil, false
	}
	return v.members[i].val, true
}

// Has reports whether v is an object carrying the named member.
func (v *Value) Has(key string) bool {
	_, ok := v.Field(key)
	return ok
}

// Len returns the element count of an array or the member count of an object.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	}
	return 0
}

// Index returns the i-th array element.
func (v *Value) Index(i int) (*Value, error) {
	if v.kind != KindArray {
		return nil, fmt.Errorf("llmjson: Index on %s value", v.kind)
	}
	if i < 0 || i >= len(v.items) {
		return nil, fmt.Errorf("llmjson: index %d out of range (len %d)", i, len(v.items))
	}
	return v.items[i], nil
}

// String returns the string payload.
func (v *Value) String() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("llmjson: String on %s value", v.kind)
	}
	return v.str, nil
}

// Float64 returns the numeric payload as a float.
func (v *Value) Float64() (float64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("llmjson: Float64 on %s value", v.kind)
	}
	return v.num.Float64()
}

// Int64 returns the numeric payload as an integer, rejecting fractions.
func (v *Value) Int64() (int64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("llmjson: Int64 on %s value", v.kind)
	}
	return v.num.Int64()
}

// Decimal returns the numeric payload as an exact decimal. Monetary fields go
// through this accessor so that statement amounts survive without float drift.
func (v *Value) Decimal() (decimal.Decimal, error) {
	if v.kind != KindNumber {
		return decimal.Zero, fmt.Errorf("llmjson: Decimal on %s value", v.kind)
	}
	return decimal.NewFromString(v.num.String())
}

// Bool returns the boolean payload.
func (v *Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("llmjson: Bool on %s value", v.kind)
	}
	return v.boolean, nil
}

// JSON serializes v back to compact JSON, preserving object member order.
func (v *Value) JSON() string {
	var sb strings.Builder
	v.writeJSON(&sb)
	return sb.String()
}

func (v *Value) writeJSON(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.boolean))
	case KindNumber:
		sb.WriteString(v.num.String())
	case KindString:
		b, _ := json.Marshal(v.str)
		sb.Write(b)
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeJSON(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		sb.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				sb.WriteByte(',')
			}
			b, _ := json.Marshal(m.key)
			sb.Write(b)
			sb.WriteByte(':')
			m.val.writeJSON(sb)
		}
		sb.WriteByte('}')
	}
}

// decode parses text as exactly one JSON value, preserving object key order.
func decode(raw string) (*Value, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	// Reject trailing non-whitespace so a damaged tail cannot ride along.
	if dec.More() {
		return nil, fmt.Errorf("llmjson: trailing content after value")
	}
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("llmjson: trailing token after value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return valueFromToken(dec, tok)
}

func valueFromToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := &Value{kind: KindObject, index: map[string]int{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("llmjson: object key is %T", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				if i, dup := v.index[key]; dup {
					// Last occurrence wins, same as encoding/json.
					v.members[i].val = val
					continue
				}
				v.index[key] = len(v.members)
				v.members = append(v.members, member{key: key, val: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return v, nil
		case '[':
			v := &Value{kind: KindArray}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				v.items = append(v.items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return v, nil
		}
		return nil, fmt.Errorf("llmjson: unexpected delimiter %v", t)
	case string:
		return &Value{kind: KindString, str: t}, nil
	case json.Number:
		return &Value{kind: KindNumber, num: t}, nil
	case bool:
		return &Value{kind: KindBool, boolean: t}, nil
	case nil:
		return &Value{kind: KindNull}, nil
	}
	return nil, fmt.Errorf("llmjson: unexpected token %T", tok)
}
