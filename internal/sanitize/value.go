// Package sanitize はリクエストデータ中の文字列からマークアップを無害化します。
package sanitize

import (
	"encoding/json"
	"fmt"
)

// Kind は Value が保持する値の種類です。
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value は JSON 互換のデータをタグ付きで表現します。
// 文字列は KindString の葉にのみ現れます。
type Value struct {
	kind Kind
	str  string
	num  json.Number
	b    bool
	list []Value
	m    map[string]Value
}

func Null() Value                  { return Value{kind: KindNull} }
func String(s string) Value        { return Value{kind: KindString, str: s} }
func Number(n json.Number) Value   { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value    { return Value{kind: KindList, list: items} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }

// Str は KindString の値を返します。それ以外では空文字列です。
func (v Value) Str() string { return v.str }

// Items は KindList の要素を返します。
func (v Value) Items() []Value { return v.list }

// Fields は KindMap のメンバーを返します。
func (v Value) Fields() map[string]Value { return v.m }

// FromAny は encoding/json でデコードした値（UseNumber 推奨）を Value に変換します。
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Number(json.Number(fmt.Sprint(t))), nil
	case bool:
		return Bool(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields[k] = v
		}
		return Map(fields), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// Any は Value を json.Marshal 可能な値に戻します。
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// MapStrings は全ての文字列の葉に fn を適用した新しい Value を返します。
// 文字列以外の葉はそのまま残ります。
func (v Value) MapStrings(fn func(string) string) Value {
	switch v.kind {
	case KindString:
		return String(fn(v.str))
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.MapStrings(fn)
		}
		return List(items...)
	case KindMap:
		fields := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			fields[k] = item.MapStrings(fn)
		}
		return Map(fields)
	default:
		return v
	}
}
