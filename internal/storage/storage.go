package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"photo-thumbnailer/internal/models"
)

// querier is the part of *pgxpool.Pool the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Storage struct {
	q    querier
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(ctx context.Context, dsn string, log *slog.Logger) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db, log); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{q: pool, pool: pool, db: db}, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

const selectImage = `SELECT id, path, title, category, bucket, generated_paths, uploaded_by, created_at, updated_at
	FROM images WHERE path = $1`

func (s *Storage) GetImageByPath(ctx context.Context, path string) (*models.ImageRecord, error) {
	const op = "storage.GetImageByPath"

	var (
		img models.ImageRecord
		raw []byte
	)
	err := s.q.QueryRow(ctx, selectImage, path).Scan(
		&img.ID, &img.Path, &img.Title, &img.Category, &img.Bucket, &raw,
		&img.UploadedBy, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %s: %w", op, path, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &img.GeneratedPaths); err != nil {
			return nil, fmt.Errorf("%s: decode generated_paths: %w", op, err)
		}
	}
	return &img, nil
}

// SaveImage inserts a new row. If another request inserted the same path in
// the meantime, the row is updated instead of failing on the unique key.
func (s *Storage) SaveImage(ctx context.Context, img *models.ImageRecord) error {
	const op = "storage.SaveImage"

	paths, err := encodePaths(img.GeneratedPaths)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.q.QueryRow(ctx,
		`INSERT INTO images (path, title, category, bucket, generated_paths, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			bucket = EXCLUDED.bucket,
			uploaded_by = EXCLUDED.uploaded_by,
			updated_at = now()
		RETURNING id, created_at, updated_at`,
		img.Path, img.Title, img.Category, img.Bucket, paths, img.UploadedBy,
	).Scan(&img.ID, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateImage rewrites the descriptive columns of the row keyed by path.
// Generated paths are left untouched.
func (s *Storage) UpdateImage(ctx context.Context, img *models.ImageRecord) error {
	const op = "storage.UpdateImage"

	tag, err := s.q.Exec(ctx,
		`UPDATE images SET title = $2, category = $3, bucket = $4, uploaded_by = $5, updated_at = now()
		WHERE path = $1`,
		img.Path, img.Title, img.Category, img.Bucket, img.UploadedBy)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %s: %w", op, img.Path, models.ErrNotFound)
	}
	return nil
}

func (s *Storage) UpdateGeneratedPaths(ctx context.Context, path string, gp models.GeneratedPaths) error {
	const op = "storage.UpdateGeneratedPaths"

	paths, err := encodePaths(gp)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE images SET generated_paths = $2, updated_at = now() WHERE path = $1`, path, paths)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %s: %w", op, path, models.ErrNotFound)
	}
	return nil
}

func (s *Storage) DeleteImage(ctx context.Context, id int64) error {
	const op = "storage.DeleteImage"
	tag, err := s.q.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: id %d: %w", op, id, models.ErrNotFound)
	}
	return nil
}

func (s *Storage) DeleteImageByPath(ctx context.Context, path string) error {
	const op = "storage.DeleteImageByPath"
	tag, err := s.q.Exec(ctx, `DELETE FROM images WHERE path = $1`, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %s: %w", op, path, models.ErrNotFound)
	}
	return nil
}

func encodePaths(gp models.GeneratedPaths) ([]byte, error) {
	if gp == nil {
		gp = models.GeneratedPaths{}
	}
	return json.Marshal(gp)
}
