package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/inkwell-blog/inkwell/types"
)

const titleMaxLen = 100

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context) ([]types.Post, error)
	Get(ctx context.Context, id int) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id int) error
}

// PostInput is the submitted post form.
type PostInput struct {
	Title   string
	Content string
}

// PostService encapsulates post use-cases and the ownership rule.
type PostService struct {
	repo   PostRepository
	events EventPublisher
	logger *slog.Logger
}

func NewPostService(repo PostRepository, events EventPublisher, logger *slog.Logger) *PostService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostService{repo: repo, events: events, logger: logger}
}

// List returns every post, newest first.
func (s *PostService) List(ctx context.Context) ([]types.Post, error) {
	return s.repo.List(ctx)
}

func (s *PostService) Get(ctx context.Context, id int) (types.Post, error) {
	if id < 1 {
		return types.Post{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create stores a new post owned by identity.
func (s *PostService) Create(ctx context.Context, identity types.User, in PostInput) (types.Post, error) {
	in, err := validatePost(in)
	if err != nil {
		return types.Post{}, err
	}

	post, err := s.repo.Create(ctx, types.Post{
		Title:   in.Title,
		Content: in.Content,
		UserID:  identity.ID,
	})
	if err != nil {
		return types.Post{}, fmt.Errorf("create post: %w", err)
	}
	post.Author = identity

	publishEvent(ctx, s.events, s.logger, types.Event{Type: types.EventPostCreated, UserID: identity.ID, PostID: post.ID})
	return post, nil
}

// Editable loads a post the identity is allowed to change.
func (s *PostService) Editable(ctx context.Context, identity types.User, id int) (types.Post, error) {
	post, err := s.Get(ctx, id)
	if err != nil {
		return types.Post{}, err
	}
	if !post.OwnedBy(identity.ID) {
		return types.Post{}, ErrForbidden
	}
	return post, nil
}

// Update rewrites title and content of a post owned by identity. Missing
// posts fail with ErrNotFound and foreign posts with ErrForbidden before
// the input is looked at.
func (s *PostService) Update(ctx context.Context, identity types.User, id int, in PostInput) (types.Post, error) {
	post, err := s.Editable(ctx, identity, id)
	if err != nil {
		return types.Post{}, err
	}

	in, err = validatePost(in)
	if err != nil {
		return post, err
	}

	post.Title = in.Title
	post.Content = in.Content
	updated, err := s.repo.Update(ctx, post)
	if err != nil {
		return types.Post{}, fmt.Errorf("update post: %w", err)
	}
	updated.Author = post.Author

	publishEvent(ctx, s.events, s.logger, types.Event{Type: types.EventPostUpdated, UserID: identity.ID, PostID: id})
	return updated, nil
}

// Delete permanently removes a post owned by identity.
func (s *PostService) Delete(ctx context.Context, identity types.User, id int) error {
	if _, err := s.Editable(ctx, identity, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete post: %w", err)
	}

	publishEvent(ctx, s.events, s.logger, types.Event{Type: types.EventPostDeleted, UserID: identity.ID, PostID: id})
	return nil
}

func validatePost(in PostInput) (PostInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	verr := &ValidationError{}
	switch {
	case in.Title == "":
		verr.Add("title", "This field is required.")
	case utf8.RuneCountInString(in.Title) > titleMaxLen:
		verr.Add("title", fmt.Sprintf("Field cannot be longer than %d characters.", titleMaxLen))
	}
	if strings.TrimSpace(in.Content) == "" {
		verr.Add("content", "This field is required.")
	}
	return in, verr.orNil()
}
