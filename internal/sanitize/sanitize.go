package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はタグを除去し、残りのテキストを HTML エンティティでエスケープします。
// 出力には < > " ' が生のまま残らないため、再適用しても結果は変わりません。
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New は Sanitizer を作成します。
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text は単一の文字列を無害化します。
func (s *Sanitizer) Text(in string) string {
	if in == "" {
		return in
	}
	return s.policy.Sanitize(in)
}

// Value は入れ子構造の全ての文字列の葉を無害化します。
func (s *Sanitizer) Value(v Value) Value {
	return v.MapStrings(s.Text)
}

// Strings はスライスの各要素をその場で無害化します。
func (s *Sanitizer) Strings(values []string) {
	for i, v := range values {
		values[i] = s.Text(v)
	}
}

// ErrNotJSON は本文が JSON として解釈できないことを表します。
var ErrNotJSON = errors.New("sanitize: body is not valid JSON")

// JSON は JSON 文書を無害化して再エンコードします。
func (s *Sanitizer) JSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, ErrNotJSON
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrNotJSON
	}

	v, err := FromAny(doc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.Value(v).Any()); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
