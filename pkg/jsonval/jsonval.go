// Package jsonval parses JSON into a generic value tree that keeps the
// original numeric tokens and object key order. The ingest pipeline archives
// each record's canonical text and parses fee/latency numbers into
// arbitrary-precision decimals, so numbers must never pass through float64.
package jsonval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/edgeandnode/qos-oracle/pkg/decimal"
)

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// Member is one key/value entry of an object, in source order.
type Member struct {
	Key   string
	Value *Value
}

// Value is a parsed JSON value. Numbers keep their source token in Num.
type Value struct {
	Kind    Kind
	Str     string
	Num     string
	Boolean bool
	Items   []*Value
	Members []Member
}

// Parse decodes data into a Value tree.
func Parse(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse json: trailing data after value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return fromToken(dec, tok)
}

func fromToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return &Value{Kind: Null}, nil
	case bool:
		return &Value{Kind: Bool, Boolean: t}, nil
	case json.Number:
		return &Value{Kind: Number, Num: t.String()}, nil
	case string:
		return &Value{Kind: String, Str: t}, nil
	case json.Delim:
		switch t {
		case '[':
			arr := &Value{Kind: Array}
			for dec.More() {
				item, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Items = append(arr.Items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		case '{':
			obj := &Value{Kind: Object}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Members = append(obj.Members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// Get returns the member named key, or nil when v is not an object or the
// key is absent. A nil result is safe to pass to every extractor below.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != Object {
		return nil
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// ToString returns the string held by val, or "" when val is nil or not a
// string.
func ToString(val *Value) string {
	if val != nil && val.Kind == String {
		return val.Str
	}
	return ""
}

// ToInt64 returns the integer held by val, or 0 when val is nil, not a
// number, or not an integral token.
func ToInt64(val *Value) int64 {
	if val != nil && val.Kind == Number {
		if n, err := strconv.ParseInt(val.Num, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// ToDecimal returns the decimal held by val, or zero when val is nil or the
// token is not a number. String-typed numeric fields are accepted too since
// gateways quote high-precision fee values.
func ToDecimal(val *Value) decimal.Decimal {
	if val == nil {
		return decimal.Zero
	}
	var token string
	switch val.Kind {
	case Number:
		token = val.Num
	case String:
		token = val.Str
	default:
		return decimal.Zero
	}
	d, err := decimal.New(token)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Canonical renders val as compact JSON, preserving numeric tokens and
// object key order. Used to archive each record's raw text.
func Canonical(val *Value) string {
	if val == nil {
		return ""
	}
	var b strings.Builder
	writeCanonical(&b, val)
	return b.String()
}

func writeCanonical(b *strings.Builder, val *Value) {
	switch val.Kind {
	case Null:
		b.WriteString("null")
	case Bool:
		if val.Boolean {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case Number:
		b.WriteString(val.Num)
	case String:
		quoted, _ := json.Marshal(val.Str)
		b.Write(quoted)
	case Array:
		b.WriteByte('[')
		for i, item := range val.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case Object:
		b.WriteByte('{')
		for i, m := range val.Members {
			if i > 0 {
				b.WriteByte(',')
			}
			quoted, _ := json.Marshal(m.Key)
			b.Write(quoted)
			b.WriteByte(':')
			writeCanonical(b, m.Value)
		}
		b.WriteByte('}')
	}
}
