package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"sync"
	"testing"

	"github.com/inkwell-blog/inkwell/config"
	"github.com/inkwell-blog/inkwell/internal/storage"
	"github.com/inkwell-blog/inkwell/internal/store"
	"github.com/inkwell-blog/inkwell/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) eventTypes() []types.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	users   *UserService
	posts   *PostService
	avatars *AvatarService
	store   *storage.Storage
	events  *recordingPublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	objects, err := storage.New(context.Background(), config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)

	events := &recordingPublisher{}
	avatars := NewAvatarService(objects, 1<<20)
	users := NewUserService(mem.Users(), avatars, events, nil)
	users.hashCost = bcrypt.MinCost

	return fixture{
		users:   users,
		posts:   NewPostService(mem.Posts(), events, nil),
		avatars: avatars,
		store:   objects,
		events:  events,
	}
}

func (f fixture) register(t *testing.T, username, email, password string) types.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), RegisterInput{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
	})
	require.NoError(t, err)
	return user
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// oversizedPNG returns a tiny PNG whose header declares w x h pixels.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := bytes.Clone(pngBytes(t, 1, 1))
	// IHDR data starts after the 8 byte signature, length and chunk type.
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	verr, ok := AsValidationError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	assert.Contains(t, verr.Fields, field)
}

func TestRegister_StoresHashNotPlaintext(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice", "a@x.com", "pw123")

	assert.NotZero(t, user.ID)
	assert.Equal(t, types.DefaultImageFile, user.ImageFile)
	assert.NotEqual(t, "pw123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pw123")))
	assert.Equal(t, []types.EventType{types.EventUserRegistered}, f.events.eventTypes())
}

func TestRegister_DuplicateUsernameOrEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "a@x.com", "pw123")

	_, err := f.users.Register(ctx, RegisterInput{Username: "alice", Email: "new@x.com", Password: "p", ConfirmPassword: "p"})
	requireFieldError(t, err, "username")

	_, err = f.users.Register(ctx, RegisterInput{Username: "newbie", Email: "a@x.com", Password: "p", ConfirmPassword: "p"})
	requireFieldError(t, err, "email")
}

func TestRegister_MalformedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]RegisterInput{
		"username":         {Username: "a", Email: "a@x.com", Password: "p", ConfirmPassword: "p"},
		"email":            {Username: "alice", Email: "not-an-email", Password: "p", ConfirmPassword: "p"},
		"password":         {Username: "alice", Email: "a@x.com"},
		"confirm_password": {Username: "alice", Email: "a@x.com", Password: "p", ConfirmPassword: "q"},
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := f.users.Register(ctx, in)
			requireFieldError(t, err, field)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw123")

	user, err := f.users.Authenticate(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	_, err = f.users.Authenticate(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.users.Authenticate(ctx, "nobody@x.com", "pw123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.users.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateAccount_RechecksUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")
	f.register(t, "bob", "b@x.com", "pw")

	_, err := f.users.UpdateAccount(ctx, alice, AccountInput{Username: "bob", Email: "a@x.com"})
	requireFieldError(t, err, "username")

	_, err = f.users.UpdateAccount(ctx, alice, AccountInput{Username: "alice", Email: "b@x.com"})
	requireFieldError(t, err, "email")

	updated, err := f.users.UpdateAccount(ctx, alice, AccountInput{Username: "alice", Email: "alice@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", updated.Email)
	assert.Equal(t, types.DefaultImageFile, updated.ImageFile)
}

func TestUpdateAccount_AvatarIsResizedAndOldOneRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")

	first, err := f.users.UpdateAccount(ctx, alice, AccountInput{
		Username: "alice",
		Email:    "a@x.com",
		Avatar:   &AvatarUpload{Filename: "me.png", Data: pngBytes(t, 250, 100)},
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}\.png$`), first.ImageFile)

	data, contentType, err := f.avatars.Open(ctx, first.ImageFile)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 125, cfg.Width)
	assert.Equal(t, 50, cfg.Height)

	second, err := f.users.UpdateAccount(ctx, first, AccountInput{
		Username: "alice",
		Email:    "a@x.com",
		Avatar:   &AvatarUpload{Filename: "again.png", Data: pngBytes(t, 40, 40)},
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ImageFile, second.ImageFile)

	_, _, err = f.avatars.Open(ctx, first.ImageFile)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.avatars.Open(ctx, second.ImageFile)
	assert.NoError(t, err)
}

func TestUpdateAccount_RejectsUnapprovedPicture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")

	_, err := f.users.UpdateAccount(ctx, alice, AccountInput{
		Username: "alice",
		Email:    "a@x.com",
		Avatar:   &AvatarUpload{Filename: "me.gif", Data: []byte("GIF89a")},
	})
	requireFieldError(t, err, "picture")

	_, err = f.users.UpdateAccount(ctx, alice, AccountInput{
		Username: "alice",
		Email:    "a@x.com",
		Avatar:   &AvatarUpload{Filename: "me.jpg", Data: []byte("definitely not a jpeg")},
	})
	requireFieldError(t, err, "picture")
}

func TestAvatarService_RejectsHugeDimensions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	upload := oversizedPNG(t, 40000, 40000)
	cfg, err := png.DecodeConfig(bytes.NewReader(upload))
	require.NoError(t, err)
	require.Equal(t, 40000, cfg.Width)
	require.Less(t, len(upload), 1024)

	_, err = f.avatars.Save(ctx, AvatarUpload{Filename: "bomb.png", Data: upload})
	requireFieldError(t, err, "picture")

	alice := f.register(t, "alice", "a@x.com", "pw")
	_, err = f.users.UpdateAccount(ctx, alice, AccountInput{
		Username: "alice",
		Email:    "a@x.com",
		Avatar:   &AvatarUpload{Filename: "bomb.png", Data: oversizedPNG(t, 5001, 5000)},
	})
	requireFieldError(t, err, "picture")

	stored, err := f.users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ImageFile, stored.ImageFile)
}

func TestThumbnail(t *testing.T) {
	small := image.NewRGBA(image.Rect(0, 0, 60, 30))
	assert.Same(t, small, Thumbnail(small, 125, 125))

	tall := Thumbnail(image.NewRGBA(image.Rect(0, 0, 100, 500)), 125, 125)
	assert.Equal(t, 25, tall.Bounds().Dx())
	assert.Equal(t, 125, tall.Bounds().Dy())
}

func TestAvatarService_DeleteKeepsDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, AvatarKey(types.DefaultImageFile), bytes.NewReader([]byte("x")), 1, "image/jpeg"))

	require.NoError(t, f.avatars.Delete(ctx, types.DefaultImageFile))
	_, err := f.store.ReadAll(ctx, AvatarKey(types.DefaultImageFile), 10)
	assert.NoError(t, err)

	_, _, err = f.avatars.Open(ctx, "../secret.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPosts_CreateThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")

	created, err := f.posts.Create(ctx, alice, PostInput{Title: "T", Content: "C"})
	require.NoError(t, err)

	got, err := f.posts.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "C", got.Content)
	assert.Equal(t, alice.ID, got.UserID)
	assert.Equal(t, "alice", got.Author.Username)
	assert.False(t, got.DatePosted.IsZero())
}

func TestPosts_NonOwnerIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")
	bob := f.register(t, "bob", "b@x.com", "pw")

	post, err := f.posts.Create(ctx, alice, PostInput{Title: "Hi", Content: "Hello"})
	require.NoError(t, err)

	_, err = f.posts.Update(ctx, bob, post.ID, PostInput{Title: "Hacked", Content: "Owned"})
	assert.ErrorIs(t, err, ErrForbidden)
	err = f.posts.Delete(ctx, bob, post.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.posts.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi", got.Title)
	assert.Equal(t, "Hello", got.Content)

	// Ownership is checked before the form is validated.
	_, err = f.posts.Update(ctx, bob, post.ID, PostInput{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPosts_MissingIDIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")

	for _, id := range []int{0, -1, 999} {
		_, err := f.posts.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.posts.Update(ctx, alice, id, PostInput{Title: "T", Content: "C"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, f.posts.Delete(ctx, alice, id), ErrNotFound)
	}
}

func TestPosts_OwnerUpdatesAndDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")
	post, err := f.posts.Create(ctx, alice, PostInput{Title: "Hi", Content: "Hello"})
	require.NoError(t, err)

	_, err = f.posts.Update(ctx, alice, post.ID, PostInput{Title: " ", Content: "x"})
	requireFieldError(t, err, "title")

	updated, err := f.posts.Update(ctx, alice, post.ID, PostInput{Title: "Hi again", Content: "Hello again"})
	require.NoError(t, err)
	assert.Equal(t, "Hi again", updated.Title)

	require.NoError(t, f.posts.Delete(ctx, alice, post.ID))
	_, err = f.posts.Get(ctx, post.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []types.EventType{
		types.EventUserRegistered,
		types.EventPostCreated,
		types.EventPostUpdated,
		types.EventPostDeleted,
	}, f.events.eventTypes())
}

func TestPosts_ListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "a@x.com", "pw")

	first, err := f.posts.Create(ctx, alice, PostInput{Title: "one", Content: "1"})
	require.NoError(t, err)
	second, err := f.posts.Create(ctx, alice, PostInput{Title: "two", Content: "2"})
	require.NoError(t, err)

	posts, err := f.posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID)
	assert.Equal(t, first.ID, posts[1].ID)
}
