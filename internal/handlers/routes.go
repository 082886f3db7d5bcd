package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/inkwell/internal/services"
	"github.com/inkwell-blog/inkwell/internal/session"
	"github.com/inkwell-blog/inkwell/internal/views"
)

// Dependencies are the collaborators shared by every handler.
type Dependencies struct {
	Users    *services.UserService
	Posts    *services.PostService
	Avatars  *services.AvatarService
	Sessions *session.Manager
	Views    *views.Renderer
	Logger   *slog.Logger
}

func (d Dependencies) pages() pages {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return pages{views: d.Views, logger: logger}
}

// Routes registers every blog route on r. The identity middleware runs for
// all of them so pages know who is logged in.
func Routes(r chi.Router, deps Dependencies) {
	auth := NewAuthHandler(deps)
	fallback := deps.pages()

	r.Get("/healthz", Healthz)
	r.NotFound(auth.LoadIdentity(http.HandlerFunc(fallback.NotFound)).ServeHTTP)
	r.MethodNotAllowed(auth.LoadIdentity(http.HandlerFunc(fallback.MethodNotAllowed)).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(auth.LoadIdentity)

		AuthRouter(r, auth)
		AccountRouter(r, NewAccountHandler(deps), auth.RequireAuth)
		PostRouter(r, NewPostHandler(deps), auth.RequireAuth)
	})
}
