// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the variants of Value.
type ValueKind int

const (
	// KindNull is the zero Value.
	KindNull ValueKind = iota

	// KindString holds a string.
	KindString

	// KindNumber holds a float64. Integer attribute values are carried
	// as whole floats, matching JSON number semantics.
	KindNumber

	// KindBool holds a bool.
	KindBool
)

// Value is a span attribute value: a small tagged union over the JSON
// scalar types. Producers drift in how they type their attributes, so
// every accessor degrades to a zero value instead of panicking on a kind
// mismatch.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// StringValue returns a Value holding s.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberValue returns a Value holding f.
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// BoolValue returns a Value holding b.
func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// NullValue returns the null Value. Equivalent to the zero Value.
func NullValue() Value {
	return Value{}
}

// Kind returns the variant held by the value.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// String renders the value for display. Strings are returned verbatim,
// numbers and bools are formatted, null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Float64 returns the numeric value. ok is false unless the kind is
// KindNumber.
func (v Value) Float64() (f float64, ok bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Bool returns the boolean value. ok is false unless the kind is KindBool.
func (v Value) Bool() (b bool, ok bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// MarshalJSON encodes the value as the bare JSON scalar it holds.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts any JSON value. Scalars map onto their union
// variant; objects and arrays are preserved as their compact JSON text in
// a string value so that unrecognized producer payloads survive a round
// trip instead of failing ingestion.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("telemetry: decode string value: %w", err)
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("telemetry: decode bool value: %w", err)
		}
		*v = BoolValue(b)
	case '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return fmt.Errorf("telemetry: compact composite value: %w", err)
		}
		*v = StringValue(compact.String())
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("telemetry: decode number value: %w", err)
		}
		*v = NumberValue(f)
	}
	return nil
}

// Attributes is the open key/value map attached to spans and events.
type Attributes map[string]Value

// String returns the string under key. ok is false when the key is absent
// or holds a non-string.
func (a Attributes) String(key string) (s string, ok bool) {
	v, present := a[key]
	if !present || v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Number returns the number under key. ok is false when the key is absent
// or holds a non-number.
func (a Attributes) Number(key string) (f float64, ok bool) {
	v, present := a[key]
	if !present {
		return 0, false
	}
	return v.Float64()
}

// Bool returns the bool under key. ok is false when the key is absent or
// holds a non-bool.
func (a Attributes) Bool(key string) (b bool, ok bool) {
	v, present := a[key]
	if !present {
		return false, false
	}
	return v.Bool()
}

// Has reports whether key is present, regardless of its kind.
func (a Attributes) Has(key string) bool {
	_, present := a[key]
	return present
}
