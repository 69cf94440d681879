package users

import (
	"context"
	"fmt"

	"github.com/yourusername/user-service/internal/apperr"
)

// IdentityFinder は一意性チェックに必要なストアの操作です。
type IdentityFinder interface {
	FindByNameOrEmail(ctx context.Context, name, email string) ([]User, error)
}

// EnsureUnique は name または email が他のユーザーに使われていないことを確認します。
// excludeID は更新対象のユーザーで、作成時は空文字列を渡します。
func EnsureUnique(ctx context.Context, finder IdentityFinder, name, email, excludeID string) error {
	matches, err := finder.FindByNameOrEmail(ctx, name, email)
	if err != nil {
		return apperr.Internal(fmt.Errorf("uniqueness lookup: %w", err))
	}

	exclude := NormalizeID(excludeID)
	for _, u := range matches {
		if exclude == "" || NormalizeID(u.ID) != exclude {
			return apperr.Conflict()
		}
	}
	return nil
}
