package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkwell-blog/inkwell/types"
)

// MemoryStore keeps users and posts in process memory. It enforces the
// same uniqueness and not-found rules as the Postgres repositories.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int]types.User
	posts      map[int]types.Post
	nextUserID int
	nextPostID int
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int]types.User),
		posts:      make(map[int]types.Post),
		nextUserID: 1,
		nextPostID: 1,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Users returns a user repository backed by the store.
func (s *MemoryStore) Users() *MemoryUserRepository {
	return &MemoryUserRepository{s: s}
}

// Posts returns a post repository backed by the store.
func (s *MemoryStore) Posts() *MemoryPostRepository {
	return &MemoryPostRepository{s: s}
}

// MemoryUserRepository is the in-memory counterpart of UserRepository.
type MemoryUserRepository struct {
	s *MemoryStore
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Username == username })
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) find(match func(types.User) bool) (types.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.users {
		if match(user) {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.taken(0, user.Username, user.Email) {
		return types.User{}, ErrConflict
	}

	now := r.s.now()
	user.ID = r.s.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.ImageFile == "" {
		user.ImageFile = types.DefaultImageFile
	}
	r.s.nextUserID++
	r.s.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.users[user.ID]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if r.s.taken(user.ID, user.Username, user.Email) {
		return types.User{}, ErrConflict
	}

	current.Username = user.Username
	current.Email = user.Email
	current.ImageFile = user.ImageFile
	current.UpdatedAt = r.s.now()
	r.s.users[current.ID] = current
	return current, nil
}

// taken reports whether another user already holds the username or email.
// Callers must hold the write lock.
func (s *MemoryStore) taken(exceptID int, username, email string) bool {
	for id, existing := range s.users {
		if id == exceptID {
			continue
		}
		if existing.Username == username || existing.Email == email {
			return true
		}
	}
	return false
}

// MemoryPostRepository is the in-memory counterpart of PostRepository.
type MemoryPostRepository struct {
	s *MemoryStore
}

// List returns every post, newest first.
func (r *MemoryPostRepository) List(_ context.Context) ([]types.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	posts := make([]types.Post, 0, len(r.s.posts))
	for _, post := range r.s.posts {
		posts = append(posts, r.s.withAuthor(post))
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].DatePosted.Equal(posts[j].DatePosted) {
			return posts[i].DatePosted.After(posts[j].DatePosted)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts, nil
}

func (r *MemoryPostRepository) Get(_ context.Context, id int) (types.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	post, ok := r.s.posts[id]
	if !ok {
		return types.Post{}, ErrNotFound
	}
	return r.s.withAuthor(post), nil
}

func (r *MemoryPostRepository) Create(_ context.Context, post types.Post) (types.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[post.UserID]; !ok {
		return types.Post{}, ErrNotFound
	}

	now := r.s.now()
	post.ID = r.s.nextPostID
	if post.DatePosted.IsZero() {
		post.DatePosted = now
	}
	post.UpdatedAt = now
	post.Author = types.User{}
	r.s.nextPostID++
	r.s.posts[post.ID] = post
	return post, nil
}

func (r *MemoryPostRepository) Update(_ context.Context, post types.Post) (types.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.posts[post.ID]
	if !ok {
		return types.Post{}, ErrNotFound
	}
	current.Title = post.Title
	current.Content = post.Content
	current.UpdatedAt = r.s.now()
	r.s.posts[current.ID] = current
	return current, nil
}

func (r *MemoryPostRepository) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.posts, id)
	return nil
}

func (s *MemoryStore) withAuthor(post types.Post) types.Post {
	if author, ok := s.users[post.UserID]; ok {
		author.PasswordHash = ""
		post.Author = author
	}
	return post
}
