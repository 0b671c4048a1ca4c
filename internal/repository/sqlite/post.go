package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/model"
	"github.com/sakif/blogging-api/internal/repository"
)

var _ repository.PostRepository = (*PostStore)(nil)

const postColumns = `id, title, description, body, tags, author, author_id, state,
	read_count, read_time, cover_photo, created_at, updated_at`

// PostStore is the SQLite post store.
type PostStore struct {
	db *DB
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPost(sc scanner) (*model.Post, error) {
	var (
		p     model.Post
		tags  string
		state string
	)
	if err := sc.Scan(
		&p.ID, &p.Title, &p.Description, &p.Body, &tags, &p.Author, &p.AuthorID, &state,
		&p.ReadCount, &p.ReadTime, &p.CoverPhoto, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.State = model.PostState(state)
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of post %s: %w", p.ID, err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}

	return &p, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(b), nil
}

func getPost(ctx context.Context, q querier, id string) (*model.Post, error) {
	p, err := scanPost(q.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("post", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting post %s: %w", id, err)
	}
	return p, nil
}

// Create inserts the post and records it in the author's post set inside
// one transaction. The author must exist.
func (s *PostStore) Create(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.ID = xid.New().String()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.State == "" {
		post.State = model.StateDraft
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}

	tags, err := encodeTags(post.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE id = ?`, post.AuthorID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: checking author %s: %w", post.AuthorID, err)
		}
		if exists == 0 {
			return apperror.NotFound("user", post.AuthorID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO posts (`+postColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			post.ID, post.Title, post.Description, post.Body, tags, post.Author, post.AuthorID,
			string(post.State), post.ReadCount, post.ReadTime, post.CoverPhoto,
			post.CreatedAt, post.UpdatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: inserting post: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_posts (user_id, post_id) VALUES (?, ?)`,
			post.AuthorID, post.ID,
		); err != nil {
			return fmt.Errorf("sqlite: linking post %s to user %s: %w", post.ID, post.AuthorID, err)
		}

		return nil
	})
}

// GetByID returns a post regardless of state.
func (s *PostStore) GetByID(ctx context.Context, id string) (*model.Post, error) {
	return getPost(ctx, s.db.conn, id)
}

// IncrementReadCount bumps read_count with a single UPDATE guarded by the
// published predicate, then reads the row back in the same transaction.
func (s *PostStore) IncrementReadCount(ctx context.Context, id string) (*model.Post, error) {
	var post *model.Post

	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE posts SET read_count = read_count + 1
			 WHERE id = ? AND state = ?`,
			id, string(model.StatePublished),
		)
		if err != nil {
			return fmt.Errorf("sqlite: incrementing read count of post %s: %w", id, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("post", id)
		}

		post, err = getPost(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return post, nil
}

// ListPublished builds its WHERE clause only from the filter fields that
// are set. Matching uses instr on case-folded values (fold, see sqlite.go)
// so user input is never treated as a pattern.
func (s *PostStore) ListPublished(ctx context.Context, filter repository.PostFilter) ([]model.Post, error) {
	where := []string{"state = ?"}
	args := []any{string(model.StatePublished)}

	if filter.Author != "" {
		where = append(where, "instr(fold(author), fold(?)) > 0")
		args = append(args, filter.Author)
	}
	if filter.Title != "" {
		where = append(where, "instr(fold(title), fold(?)) > 0")
		args = append(args, filter.Title)
	}
	if filter.Tag != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM json_each(posts.tags)
			WHERE instr(fold(json_each.value), fold(?)) > 0)`)
		args = append(args, filter.Tag)
	}

	return s.list(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, rowid DESC`,
		args...,
	)
}

// ListByAuthor returns all of a user's posts, drafts included.
func (s *PostStore) ListByAuthor(ctx context.Context, authorID string) ([]model.Post, error) {
	return s.list(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE author_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		authorID,
	)
}

func (s *PostStore) list(ctx context.Context, query string, args ...any) ([]model.Post, error) {
	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}

	return posts, nil
}

// Update resolves, authorizes and mutates inside one transaction, in that
// order. A rejected caller leaves the row untouched.
func (s *PostStore) Update(ctx context.Context, id, callerID string, patch repository.PostPatch) (*model.Post, error) {
	var post *model.Post

	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		post, err = getPost(ctx, tx, id)
		if err != nil {
			return err
		}

		if !post.IsOwnedBy(callerID) {
			return apperror.Forbidden("You can only update a post you created!")
		}

		patch.ApplyTo(post)
		post.UpdatedAt = time.Now().UTC()

		tags, err := encodeTags(post.Tags)
		if err != nil {
			return fmt.Errorf("sqlite: updating post %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE posts
			 SET title = ?, description = ?, body = ?, tags = ?, state = ?, read_time = ?, updated_at = ?
			 WHERE id = ?`,
			post.Title, post.Description, post.Body, tags, string(post.State), post.ReadTime,
			post.UpdatedAt, post.ID,
		); err != nil {
			return fmt.Errorf("sqlite: updating post %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return post, nil
}

// Delete removes the post and its entry in the owner's post set together.
func (s *PostStore) Delete(ctx context.Context, id, callerID string) (*model.Post, error) {
	var post *model.Post

	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		post, err = getPost(ctx, tx, id)
		if err != nil {
			return err
		}

		if !post.IsOwnedBy(callerID) {
			return apperror.Forbidden("You can only delete a post you created!")
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_posts WHERE post_id = ?`, id,
		); err != nil {
			return fmt.Errorf("sqlite: unlinking post %s: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM posts WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("sqlite: deleting post %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return post, nil
}
