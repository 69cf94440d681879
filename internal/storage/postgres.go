package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/yourusername/user-service/internal/users"
)

// DB は Postgres が使う接続の操作です。*pgxpool.Pool と pgxmock が満たします。
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres は PostgreSQL のユーザーストアです。
type Postgres struct {
	db  DB
	now func() time.Time
}

// NewPostgres は Postgres を作成します。
func NewPostgres(db DB) *Postgres {
	return &Postgres{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const userColumns = `id, name, email, password_hash, created_at, updated_at`

func (p *Postgres) List(ctx context.Context) ([]users.User, error) {
	rows, err := p.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "list users").Wrap(err)
	}
	defer rows.Close()

	out := []users.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_LIST_FAILED").With("operation", "scan user").Wrap(err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return out, nil
}

func (p *Postgres) FindByID(ctx context.Context, id string) (*users.User, error) {
	id = users.NormalizeID(id)
	row := p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(users.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").With("id", id).Wrap(err)
	}
	return u, nil
}

func (p *Postgres) FindByName(ctx context.Context, name string) (*users.User, error) {
	row := p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1`, name)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("name", name).Wrap(users.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_NAME_FAILED").With("name", name).Wrap(err)
	}
	return u, nil
}

func (p *Postgres) FindByNameOrEmail(ctx context.Context, name, email string) ([]users.User, error) {
	rows, err := p.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1 OR email = $2`, name, email)
	if err != nil {
		return nil, oops.Code("USER_IDENTITY_LOOKUP_FAILED").With("name", name).Wrap(err)
	}
	defer rows.Close()

	var out []users.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_IDENTITY_LOOKUP_FAILED").With("operation", "scan user").Wrap(err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_IDENTITY_LOOKUP_FAILED").With("operation", "iterate users").Wrap(err)
	}
	return out, nil
}

func (p *Postgres) Create(ctx context.Context, user *users.User) error {
	now := p.now()
	id := uuid.NewString()

	_, err := p.db.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, user.Name, user.Email, user.PasswordHash, now, now)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("name", user.Name).
			Wrap(mapWriteError(err))
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (p *Postgres) Update(ctx context.Context, user *users.User) error {
	id := users.NormalizeID(user.ID)
	now := p.now()

	var createdAt time.Time
	err := p.db.QueryRow(ctx, `
		UPDATE users SET name = $2, email = $3, password_hash = $4, updated_at = $5
		WHERE id = $1
		RETURNING created_at
	`, id, user.Name, user.Email, user.PasswordHash, now).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(users.ErrNotFound)
	}
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id).
			Wrap(mapWriteError(err))
	}

	user.ID = id
	user.CreatedAt = createdAt
	user.UpdatedAt = now
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	id = users.NormalizeID(id)
	tag, err := p.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").With("id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(users.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// mapWriteError は一意制約違反を users.ErrDuplicate に変換します。
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return users.ErrDuplicate
	}
	return err
}
