package views

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inkwell-blog/inkwell/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_AllPagesRender(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	user := &types.User{ID: 1, Username: "alice", Email: "a@x.com", ImageFile: types.DefaultImageFile}
	post := &types.Post{ID: 3, Title: "Hi", Content: "Hello", DatePosted: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Author: *user}

	for _, name := range pages {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			err := r.Render(rec, http.StatusOK, name, Page{
				Title:       name,
				CurrentUser: user,
				Posts:       []types.Post{*post},
				Post:        post,
				CanEdit:     true,
				ImageURL:    AvatarURL(user.ImageFile),
			})
			require.NoError(t, err)
			assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), "<title>Inkwell - "+name+"</title>")
		})
	}
}

func TestRenderer_EscapesContent(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	post := &types.Post{ID: 1, Title: "<script>alert(1)</script>", Content: "x", Author: types.User{Username: "bob"}}
	require.NoError(t, r.Render(rec, http.StatusOK, "post", Page{Post: post}))

	body := rec.Body.String()
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "/post/1/delete")
}

func TestRenderer_FormErrorsAndStatus(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, r.Render(rec, http.StatusUnprocessableEntity, "register", Page{
		Form:   map[string]string{"username": "alice"},
		Errors: map[string]string{"username": "That username is taken. Please choose a different one."},
	}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="alice"`)
	assert.Contains(t, rec.Body.String(), "That username is taken.")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	assert.Error(t, r.Render(rec, http.StatusOK, "missing", Page{}))
	assert.Equal(t, 0, rec.Body.Len())
}

func TestDefaultAvatar(t *testing.T) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(DefaultAvatar()))
	require.NoError(t, err)
	assert.Equal(t, defaultAvatarSide, cfg.Width)
	assert.Equal(t, defaultAvatarSide, cfg.Height)

	assert.Equal(t, "/static/profile_pics/default.jpg", AvatarURL(""))
}
