package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/inkwell/internal/services"
	"github.com/inkwell-blog/inkwell/internal/session"
	"github.com/inkwell-blog/inkwell/internal/views"
)

const loginFailedNotice = "Login Unsuccessful. Please check email and password"

// AuthHandler provides registration, login and session middleware.
type AuthHandler struct {
	pages
	userService *services.UserService
	sessions    *session.Manager
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(deps Dependencies) *AuthHandler {
	return &AuthHandler{
		pages:       deps.pages(),
		userService: deps.Users,
		sessions:    deps.Sessions,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Get("/register", handler.RegisterForm)
	r.Post("/register", handler.Register)
	r.Get("/login", handler.LoginForm)
	r.Post("/login", handler.Login)
	r.Get("/logout", handler.Logout)
}

// LoadIdentity resolves the session cookie into the current user. Requests
// without a valid session continue anonymously and stale cookies are cleared.
func (h *AuthHandler) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.sessions.UserID(r)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				h.sessions.Clear(w)
			}
			next.ServeHTTP(w, r)
			return
		}

		user, err := h.userService.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				h.sessions.Clear(w)
				next.ServeHTTP(w, r)
				return
			}
			h.fail(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), user)))
	})
}

// RequireAuth sends anonymous callers to the login page, remembering where
// they were headed.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r.Context()); ok {
		redirect(w, r, "/")
		return
	}
	h.render(w, r, http.StatusOK, "register", views.Page{Title: "Register"})
}

// Register creates a new account and sends the caller to the login page.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r.Context()); ok {
		redirect(w, r, "/")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}

	in := services.RegisterInput{
		Username:        r.PostFormValue("username"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	if _, err := h.userService.Register(r.Context(), in); err != nil {
		if verr, ok := services.AsValidationError(err); ok {
			h.render(w, r, http.StatusUnprocessableEntity, "register", validationPage(views.Page{
				Title: "Register",
				Form:  map[string]string{"username": in.Username, "email": in.Email},
			}, verr))
			return
		}
		h.fail(w, r, err)
		return
	}

	redirect(w, r, "/login")
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r.Context()); ok {
		redirect(w, r, "/")
		return
	}
	h.render(w, r, http.StatusOK, "login", loginPage(r, ""))
}

// Login verifies credentials, issues the session cookie and redirects to the
// requested page or home.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if _, ok := IdentityFromContext(r.Context()); ok {
		redirect(w, r, "/")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	user, err := h.userService.Authenticate(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			page := loginPage(r, email)
			page.Notice = loginFailedNotice
			h.render(w, r, http.StatusUnauthorized, "login", page)
			return
		}
		h.fail(w, r, err)
		return
	}

	if err := h.sessions.Issue(w, user.ID, checked(r.PostFormValue("remember"))); err != nil {
		h.fail(w, r, err)
		return
	}
	redirect(w, r, safeNext(r.URL.Query().Get("next")))
}

// Logout clears the session whether or not one exists.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	redirect(w, r, "/")
}

func loginPage(r *http.Request, email string) views.Page {
	action := "/login"
	if next := r.URL.Query().Get("next"); next != "" {
		action += "?next=" + url.QueryEscape(next)
	}
	return views.Page{
		Title:  "Login",
		Action: action,
		Form:   map[string]string{"email": email},
	}
}
