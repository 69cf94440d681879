package sanitize

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/user-service/internal/apperr"
)

// MaxBodyBytes は無害化の対象とする本文の上限です。
const MaxBodyBytes = 1 << 20

// Request はパスパラメータ・クエリ・JSON 本文をその場で無害化するガードです。
// 無害化した本文は gin.BodyBytesKey にも格納し、後続の ShouldBindBodyWith が同じ内容を読むようにします。
func (s *Sanitizer) Request(c *gin.Context) error {
	for i := range c.Params {
		c.Params[i].Value = s.Text(c.Params[i].Value)
	}

	if c.Request.URL.RawQuery != "" {
		query := c.Request.URL.Query()
		for _, values := range query {
			s.Strings(values)
		}
		c.Request.URL.RawQuery = query.Encode()
	}

	raw, err := Body(c)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	clean, err := s.JSON(raw)
	if errors.Is(err, ErrNotJSON) {
		// JSON 以外はそのまま後段に渡し、バインド時に検証エラーとする
		clean = raw
	} else if err != nil {
		return apperr.Internal(fmt.Errorf("sanitize body: %w", err))
	}

	c.Set(gin.BodyBytesKey, clean)
	c.Request.Body = io.NopCloser(bytes.NewReader(clean))
	c.Request.ContentLength = int64(len(clean))
	return nil
}

// Body は MaxBodyBytes までの本文を返します。gin.BodyBytesKey に格納済みであればそれを使い、
// 読み込んだ場合は同じキーに格納します。
func Body(c *gin.Context) ([]byte, error) {
	if cached, ok := c.Get(gin.BodyBytesKey); ok {
		if b, ok := cached.([]byte); ok {
			return b, nil
		}
	}
	if c.Request.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, apperr.BadRequest("no se pudo leer el cuerpo de la solicitud")
	}
	if len(raw) > MaxBodyBytes {
		return nil, apperr.Validation(fmt.Sprintf(`"body" must not exceed %d bytes`, MaxBodyBytes))
	}
	c.Set(gin.BodyBytesKey, raw)
	return raw, nil
}
