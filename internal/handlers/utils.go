package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inkwell-blog/inkwell/internal/services"
	"github.com/inkwell-blog/inkwell/internal/views"
	"github.com/inkwell-blog/inkwell/types"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

var errTooLarge = errors.New("uploaded file too large")

func withIdentity(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextIdentityKey, user)
}

// IdentityFromContext returns the logged-in user stored by LoadIdentity.
func IdentityFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextIdentityKey).(types.User)
	if !ok || user.ID < 1 {
		return types.User{}, false
	}
	return user, true
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// pages renders views on behalf of every handler and maps service errors to
// error pages.
type pages struct {
	views  *views.Renderer
	logger *slog.Logger
}

func (p pages) render(w http.ResponseWriter, r *http.Request, status int, name string, page views.Page) {
	if user, ok := IdentityFromContext(r.Context()); ok {
		page.CurrentUser = &user
	}
	if err := p.views.Render(w, status, name, page); err != nil {
		p.logger.ErrorContext(r.Context(), "failed to render page",
			"template", name,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (p pages) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	p.render(w, r, status, "error", views.Page{
		Title:   http.StatusText(status),
		Status:  status,
		Message: message,
	})
}

// fail maps err to an error page. Unexpected errors are logged and hidden.
func (p pages) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		p.renderError(w, r, http.StatusNotFound, "The page you were looking for does not exist.")
	case errors.Is(err, services.ErrForbidden):
		p.renderError(w, r, http.StatusForbidden, "You do not have permission to do that.")
	case errors.Is(err, errTooLarge):
		p.renderError(w, r, http.StatusRequestEntityTooLarge, "The uploaded file is too large.")
	default:
		p.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		p.renderError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again later.")
	}
}

// NotFound renders the 404 page for unmatched routes.
func (p pages) NotFound(w http.ResponseWriter, r *http.Request) {
	p.fail(w, r, services.ErrNotFound)
}

func (p pages) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	p.renderError(w, r, http.StatusMethodNotAllowed, "That method is not allowed here.")
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func parsePostID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "postID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, services.ErrNotFound
	}
	return id, nil
}

// safeNext returns raw when it is a path on this site, and "/" otherwise.
func safeNext(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return raw
}

func checked(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "off", "n", "no":
		return false
	default:
		return true
	}
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}

func validationPage(page views.Page, verr *services.ValidationError) views.Page {
	page.Errors = verr.Fields
	return page
}
