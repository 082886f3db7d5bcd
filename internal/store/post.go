package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/inkwell-blog/inkwell/types"
)

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

const selectPostWithAuthor = `
		SELECT p.id, p.title, p.content, p.date_posted, p.updated_at, p.user_id,
			u.id, u.username, u.email, u.image_file
		FROM posts p
		JOIN users u ON u.id = p.user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (types.Post, error) {
	var post types.Post
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Content,
		&post.DatePosted,
		&post.UpdatedAt,
		&post.UserID,
		&post.Author.ID,
		&post.Author.Username,
		&post.Author.Email,
		&post.Author.ImageFile,
	)
	return post, err
}

// List returns every post, newest first.
func (r *PostRepository) List(ctx context.Context) ([]types.Post, error) {
	const query = selectPostWithAuthor + `
		ORDER BY p.date_posted DESC, p.id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepository) Get(ctx context.Context, id int) (types.Post, error) {
	const query = selectPostWithAuthor + `
		WHERE p.id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}
	return post, nil
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now().UTC()
	if post.DatePosted.IsZero() {
		post.DatePosted = now
	}
	post.UpdatedAt = now

	const query = `
		INSERT INTO posts (title, content, date_posted, updated_at, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		post.Title,
		post.Content,
		post.DatePosted,
		post.UpdatedAt,
		post.UserID,
	).Scan(&post.ID); err != nil {
		return types.Post{}, translate(err)
	}
	return post, nil
}

// Update rewrites title and content. The owner column is never touched.
func (r *PostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	post.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE posts
		SET title = $1,
			content = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, post.Title, post.Content, post.UpdatedAt, post.ID)
	if err != nil {
		return types.Post{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Post{}, err
	}
	if affected == 0 {
		return types.Post{}, ErrNotFound
	}
	return post, nil
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
