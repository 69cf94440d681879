package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost はパスワードハッシュのコスト係数です（2^10 ラウンド）。
const BcryptCost = 10

// ErrPasswordTooLong は bcrypt が扱える 72 バイトを超えるパスワードを表します。
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// PasswordHasher はパスワードのハッシュ化と照合を行います。
type PasswordHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordHasher は BcryptCost を使う PasswordHasher を作成します。
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: BcryptCost}
}

// Hash はランダムなソルト付きでパスワードをハッシュ化します。同じ入力でも毎回異なる値になります。
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(hashed), nil
}

// Verify は password が hash の元になった値であれば true を返します。
// 空の入力や不正な形式のハッシュでは false を返します。
func (h *PasswordHasher) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyNothing は存在しないユーザーに対しても照合と同程度の時間をかけるためのダミー照合です。
func (h *PasswordHasher) VerifyNothing(password string) {
	h.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		_, _ = rand.Read(buf)
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
