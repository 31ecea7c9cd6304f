package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuslib/backend/internal/models"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const newsColumns = `id, roles, news, read_by, created_at`

type PostgresNewsStore struct {
	db *sql.DB
}

func NewPostgresNewsStore(db *sql.DB) *PostgresNewsStore {
	return &PostgresNewsStore{db: db}
}

func (s *PostgresNewsStore) Create(ctx context.Context, n *models.News) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO news (id, roles, news, read_by) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		n.ID, pq.Array(n.Roles), n.News, pq.Array(n.ReadBy)).Scan(&n.CreatedAt)
	return errors.Wrap(err, "create news")
}

// List returns a page of items targeted at role, newest first.
func (s *PostgresNewsStore) List(ctx context.Context, role, search string, page, limit int) ([]models.News, int, error) {
	where := `WHERE ($1 = '' OR $1 = ANY(roles)) AND ($2 = '' OR news ILIKE $2)`
	pattern := ""
	if search != "" {
		pattern = "%" + escapeLike(search) + "%"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news `+where, role, pattern).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count news")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+newsColumns+` FROM news `+where+` ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		role, pattern, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list news")
	}
	defer rows.Close()

	items, err := scanNewsRows(rows)
	return items, total, err
}

func (s *PostgresNewsStore) CountUnread(ctx context.Context, role, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM news WHERE $1 = ANY(roles) AND NOT ($2 = ANY(read_by))`,
		role, userID).Scan(&count)
	return count, errors.Wrap(err, "count unread news")
}

// MarkAllRead adds userID to read_by of every item that lacks it.
func (s *PostgresNewsStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE news SET read_by = array_append(read_by, $1) WHERE NOT ($1 = ANY(read_by))`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "mark news read")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *PostgresNewsStore) CreatedSince(ctx context.Context, since time.Time) ([]models.News, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+newsColumns+` FROM news WHERE created_at >= $1 ORDER BY created_at DESC`, since)
	if err != nil {
		return nil, errors.Wrap(err, "list recent news")
	}
	defer rows.Close()
	return scanNewsRows(rows)
}

func scanNewsRows(rows *sql.Rows) ([]models.News, error) {
	items := []models.News{}
	for rows.Next() {
		var n models.News
		if err := rows.Scan(&n.ID, pq.Array(&n.Roles), &n.News, pq.Array(&n.ReadBy), &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan news")
		}
		if n.ReadBy == nil {
			n.ReadBy = []string{}
		}
		items = append(items, n)
	}
	return items, errors.Wrap(rows.Err(), "iterate news")
}
