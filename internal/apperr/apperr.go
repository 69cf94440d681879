// Package apperr はリクエスト処理で発生するエラーの分類を提供します。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind はエラーの種別です。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuthRequired
	KindAuthInvalid
	KindCSRFInvalid
	KindRateLimited
)

var kindNames = map[Kind]string{
	KindInternal:     "INTERNAL_ERROR",
	KindValidation:   "VALIDATION_ERROR",
	KindConflict:     "CONFLICT",
	KindNotFound:     "NOT_FOUND",
	KindAuthRequired: "AUTH_REQUIRED",
	KindAuthInvalid:  "AUTH_INVALID",
	KindCSRFInvalid:  "CSRF_INVALID",
	KindRateLimited:  "RATE_LIMITED",
}

// String は種別のコード表現を返します。
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// Status は種別に対応する HTTP ステータスコードを返します。
// AuthRequired はトークン未送信を表し、既存クライアントとの互換のため 403 を返します。
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthRequired:
		return http.StatusForbidden
	case KindAuthInvalid:
		return http.StatusUnauthorized
	case KindCSRFInvalid:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// クライアントに返す固定メッセージ
const (
	MsgConflict      = "El usuario ya está registrado"
	MsgNotFound      = "El usuario no existe"
	MsgAuthRequired  = "Token requerido"
	MsgAuthInvalid   = "Token inválido"
	MsgBadLogin      = "Credenciales incorrectas"
	MsgLoginRequired = "Username y password son requeridos"
	MsgCSRFInvalid   = "Token CSRF inválido o ausente. Por favor, recarga la página o vuelve a iniciar sesión."
	MsgInternal      = "Error interno del servidor"
)

// Error はエラー種別と応答用のペイロードを保持します。
type Error struct {
	Kind    Kind
	Message string
	// Details は検証エラーのメッセージ一覧です（違反したルールごとに1件）。
	Details []string
	// RetryAfter はレート制限時に再試行までの待ち時間を表します。
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case len(e.Details) > 0:
		return fmt.Sprintf("%s: %v", e.Kind, e.Details)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は同じ種別の *Error と一致するとみなします。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil && len(t.Details) == 0
}

// 種別比較用の番兵値。errors.Is(err, apperr.ErrConflict) のように使います。
var (
	ErrInternal     = &Error{Kind: KindInternal}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrAuthRequired = &Error{Kind: KindAuthRequired}
	ErrAuthInvalid  = &Error{Kind: KindAuthInvalid}
	ErrCSRFInvalid  = &Error{Kind: KindCSRFInvalid}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
)

// Validation は違反内容の一覧を持つ検証エラーを返します。
func Validation(details ...string) *Error {
	return &Error{Kind: KindValidation, Details: details}
}

// BadRequest は単一メッセージの検証エラーを返します。
func BadRequest(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Conflict() *Error {
	return &Error{Kind: KindConflict, Message: MsgConflict}
}

func NotFound() *Error {
	return &Error{Kind: KindNotFound, Message: MsgNotFound}
}

func AuthRequired() *Error {
	return &Error{Kind: KindAuthRequired, Message: MsgAuthRequired}
}

// AuthInvalid は署名不正・期限切れなどのトークン検証失敗を返します。
func AuthInvalid(cause error) *Error {
	return &Error{Kind: KindAuthInvalid, Message: MsgAuthInvalid, Err: cause}
}

// BadCredentials はユーザー名またはパスワードの不一致を返します。
func BadCredentials() *Error {
	return &Error{Kind: KindAuthInvalid, Message: MsgBadLogin}
}

func CSRFInvalid(cause error) *Error {
	return &Error{Kind: KindCSRFInvalid, Message: MsgCSRFInvalid, Err: cause}
}

// RateLimited はログイン試行回数の超過を返します。
func RateLimited(window, retryAfter time.Duration) *Error {
	minutes := int(window.Minutes())
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("Demasiados intentos de inicio de sesión, por favor intente luego de %d minutos.", minutes),
		RetryAfter: retryAfter,
	}
}

// Internal は内部エラーを包みます。cause はサーバー側のログにのみ出力します。
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: cause}
}

// From は任意のエラーを *Error に変換します。分類されていないエラーは Internal になります。
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
