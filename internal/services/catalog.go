package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/campuslib/backend/internal/models"
	"github.com/pkg/errors"
)

// Catalog is the book inventory as seen by the lending engine. Copy
// changes are atomic deltas; DecrementCopies reports false instead of
// taking the count below zero.
type Catalog interface {
	FindBook(ctx context.Context, id string) (*models.Book, error)
	DecrementCopies(ctx context.Context, id string) (bool, error)
	IncrementCopies(ctx context.Context, id string) error
}

const bookColumns = `id, name, title, author, category, copies, created_at`

type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) FindBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := scanBook(conn(ctx, c.db).QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find book")
	}
	return book, nil
}

func (c *PostgresCatalog) DecrementCopies(ctx context.Context, id string) (bool, error) {
	res, err := conn(ctx, c.db).ExecContext(ctx,
		`UPDATE books SET copies = copies - 1 WHERE id = $1 AND copies > 0`, id)
	if err != nil {
		return false, errors.Wrap(err, "decrement copies")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "decrement copies")
	}
	return n == 1, nil
}

func (c *PostgresCatalog) IncrementCopies(ctx context.Context, id string) error {
	res, err := conn(ctx, c.db).ExecContext(ctx,
		`UPDATE books SET copies = copies + 1 WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "increment copies")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("[CATALOG] Book %s no longer exists, copy not restocked", id)
	}
	return nil
}

// ListBooks returns a page of books matching search on id, name, title or author.
func (c *PostgresCatalog) ListBooks(ctx context.Context, search string, page, limit int) ([]models.Book, int, error) {
	where := `WHERE ($1 = '' OR id ILIKE $1 OR name ILIKE $1 OR title ILIKE $1 OR author ILIKE $1)`
	pattern := ""
	if search != "" {
		pattern = "%" + escapeLike(search) + "%"
	}

	var total int
	if err := conn(ctx, c.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM books `+where, pattern).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count books")
	}

	rows, err := conn(ctx, c.db).QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books `+where+` ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		pattern, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list books")
	}
	defer rows.Close()

	books := make([]models.Book, 0, limit)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan book")
		}
		books = append(books, *book)
	}
	return books, total, errors.Wrap(rows.Err(), "iterate books")
}

func (c *PostgresCatalog) CreateBook(ctx context.Context, book *models.Book) error {
	err := conn(ctx, c.db).QueryRowContext(ctx,
		`INSERT INTO books (id, name, title, author, category, copies)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		book.ID, book.Name, book.Title, book.Author, book.Category, book.Copies).Scan(&book.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "create book")
}

func (c *PostgresCatalog) UpdateBook(ctx context.Context, book *models.Book) error {
	err := conn(ctx, c.db).QueryRowContext(ctx,
		`UPDATE books SET name = $2, title = $3, author = $4, category = $5, copies = $6
		WHERE id = $1 RETURNING created_at`,
		book.ID, book.Name, book.Title, book.Author, book.Category, book.Copies).Scan(&book.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, "update book")
}

func (c *PostgresCatalog) DeleteBook(ctx context.Context, id string) error {
	res, err := conn(ctx, c.db).ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete book")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *PostgresCatalog) CreatedSince(ctx context.Context, since time.Time) ([]models.Book, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE created_at >= $1 ORDER BY created_at DESC`, since)
	if err != nil {
		return nil, errors.Wrap(err, "list recent books")
	}
	defer rows.Close()

	books := []models.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan book")
		}
		books = append(books, *book)
	}
	return books, errors.Wrap(rows.Err(), "iterate books")
}

func scanBook(row rowScanner) (*models.Book, error) {
	var b models.Book
	if err := row.Scan(&b.ID, &b.Name, &b.Title, &b.Author, &b.Category, &b.Copies, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
