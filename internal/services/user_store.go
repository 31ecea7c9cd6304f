package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuslib/backend/internal/models"
	"github.com/pkg/errors"
)

// UserDirectory resolves borrower identities.
type UserDirectory interface {
	FindUser(ctx context.Context, id string) (*models.User, error)
}

const userColumns = `id, name, username, role, department, status, password_changed, password, created_at`

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) FindUser(ctx context.Context, id string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresUserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// UserQuery narrows a user listing. Empty fields match everything.
type UserQuery struct {
	Search string
	Role   models.Role
	Page   int
	Limit  int
}

func (s *PostgresUserStore) List(ctx context.Context, q UserQuery) ([]models.User, int, error) {
	where := `WHERE ($1 = '' OR id ILIKE $1 OR name ILIKE $1 OR username ILIKE $1) AND ($2 = '' OR role = $2)`
	pattern := ""
	if q.Search != "" {
		pattern = "%" + escapeLike(q.Search) + "%"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users `+where, pattern, string(q.Role)).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count users")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users `+where+` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		pattern, string(q.Role), q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	users, err := scanUsers(rows)
	return users, total, err
}

// CreatedSince returns non-admin users created at or after since.
func (s *PostgresUserStore) CreatedSince(ctx context.Context, since time.Time, status models.UserStatus) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		WHERE created_at >= $1 AND role <> 'admin' AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, since, string(status))
	if err != nil {
		return nil, errors.Wrap(err, "list recent users")
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *PostgresUserStore) Create(ctx context.Context, u *models.User) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, name, username, role, department, status, password, password_changed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		u.ID, u.Name, u.Username, u.Role, u.Department, u.Status, u.Password, u.PasswordChanged).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "create user")
}

func (s *PostgresUserStore) Update(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = $2, username = $3, role = $4, department = $5, status = $6 WHERE id = $1`,
		u.ID, u.Name, u.Username, u.Role, u.Department, u.Status)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return errors.Wrap(err, "update user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword stores a new hash and marks the password as chosen by the user.
func (s *PostgresUserStore) SetPassword(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password = $2, password_changed = TRUE WHERE id = $1`, id, hash)
	if err != nil {
		return errors.Wrap(err, "set password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresUserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresUserStore) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(conn(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return u, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Role, &u.Department, &u.Status,
		&u.PasswordChanged, &u.Password, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]models.User, error) {
	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, *u)
	}
	return users, errors.Wrap(rows.Err(), "iterate users")
}
