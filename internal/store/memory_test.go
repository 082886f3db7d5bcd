package store

import (
	"context"
	"testing"
	"time"

	"github.com/inkwell-blog/inkwell/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsers_Uniqueness(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryStore().Users()

	alice, err := users.Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, types.DefaultImageFile, alice.ImageFile)

	_, err = users.Create(ctx, types.User{Username: "alice", Email: "other@x.com"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = users.Create(ctx, types.User{Username: "other", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrConflict)

	bob, err := users.Create(ctx, types.User{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	bob.Email = "a@x.com"
	_, err = users.Update(ctx, bob)
	assert.ErrorIs(t, err, ErrConflict)

	alice.Username = "alicia"
	updated, err := users.Update(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Username)
	assert.Equal(t, "h", updated.PasswordHash)

	found, err := users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	_, err = users.GetByUsername(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPosts_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	owner, err := s.Users().Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "secret"})
	require.NoError(t, err)

	posts := s.Posts()
	first, err := posts.Create(ctx, types.Post{Title: "First", Content: "A", UserID: owner.ID})
	require.NoError(t, err)
	second, err := posts.Create(ctx, types.Post{Title: "Second", Content: "B", UserID: owner.ID})
	require.NoError(t, err)

	_, err = posts.Create(ctx, types.Post{Title: "Orphan", Content: "C", UserID: 404})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, "alice", list[0].Author.Username)
	assert.Empty(t, list[0].Author.PasswordHash)

	_, err = posts.Update(ctx, types.Post{ID: first.ID, Title: "Edited", Content: "A2", UserID: 999})
	require.NoError(t, err)
	got, err := posts.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Title)
	assert.Equal(t, owner.ID, got.UserID)

	require.NoError(t, posts.Delete(ctx, first.ID))
	assert.ErrorIs(t, posts.Delete(ctx, first.ID), ErrNotFound)
	_, err = posts.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
