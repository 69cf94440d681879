// Package api は HTTP ルーティングとユーザー API のハンドラーを提供します。
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// Step はパイプラインの1段です。nil を返すと次の段へ進み、エラーを返すとそこで応答します。
type Step func(c *gin.Context) error

// pipeline は steps を順に実行する gin ハンドラーを返します。最初のエラーで打ち切ります。
func pipeline(logger *slog.Logger, steps ...Step) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, step := range steps {
			if err := step(c); err != nil {
				respondError(c, logger, err)
				return
			}
			if c.IsAborted() {
				return
			}
		}
	}
}
