package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/inkwell/internal/services"
	"github.com/inkwell-blog/inkwell/internal/views"
	"github.com/inkwell-blog/inkwell/types"
)

const (
	formFieldPicture   = "picture"
	formOverheadBytes  = 1 << 20 // multipart framing allowed on top of the picture
	maxMultipartMemory = 8 << 20
	avatarCacheControl = "public, max-age=31536000, immutable"
	defaultCacheMaxAge = "public, max-age=3600"
)

// AccountHandler serves the profile page and stored avatars.
type AccountHandler struct {
	pages
	userService *services.UserService
	avatars     *services.AvatarService
}

func NewAccountHandler(deps Dependencies) *AccountHandler {
	return &AccountHandler{
		pages:       deps.pages(),
		userService: deps.Users,
		avatars:     deps.Avatars,
	}
}

// AccountRouter registers profile routes. requireAuth guards the account page.
func AccountRouter(r chi.Router, handler *AccountHandler, requireAuth func(http.Handler) http.Handler) {
	r.With(requireAuth).Get("/account", handler.Account)
	r.With(requireAuth).Post("/account", handler.UpdateAccount)
	r.Get("/static/profile_pics/{filename}", handler.Avatar)
}

func (h *AccountHandler) Account(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	h.render(w, r, http.StatusOK, "account", accountPage(identity, identity.Username, identity.Email))
}

// UpdateAccount applies the profile form, including an optional new picture.
func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	in, err := h.parseAccountForm(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	updated, err := h.userService.UpdateAccount(r.Context(), identity, in)
	if err != nil {
		if verr, ok := services.AsValidationError(err); ok {
			h.render(w, r, http.StatusUnprocessableEntity, "account",
				validationPage(accountPage(identity, in.Username, in.Email), verr))
			return
		}
		h.fail(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "account updated", "user_id", updated.ID)
	redirect(w, r, "/account")
}

// Avatar streams a stored profile picture. The default picture is generated
// when it was never uploaded to storage.
func (h *AccountHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	data, contentType, err := h.avatars.Open(r.Context(), name)
	cacheControl := avatarCacheControl
	if errors.Is(err, services.ErrNotFound) && name == types.DefaultImageFile {
		data, contentType, err = views.DefaultAvatar(), "image/jpeg", nil
		cacheControl = defaultCacheMaxAge
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *AccountHandler) parseAccountForm(w http.ResponseWriter, r *http.Request) (services.AccountInput, error) {
	maxBytes := h.avatars.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverheadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return services.AccountInput{}, errTooLarge
			}
			return services.AccountInput{}, err
		}
	} else if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return services.AccountInput{}, errTooLarge
		}
		return services.AccountInput{}, err
	}

	in := services.AccountInput{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
	}
	if r.MultipartForm == nil {
		return in, nil
	}

	files := r.MultipartForm.File[formFieldPicture]
	if len(files) == 0 || files[0].Filename == "" {
		return in, nil
	}

	file, err := files[0].Open()
	if err != nil {
		return services.AccountInput{}, err
	}
	data, err := readFileLimited(file, maxBytes)
	_ = file.Close()
	if err != nil {
		return services.AccountInput{}, err
	}
	if len(data) == 0 {
		return in, nil
	}

	in.Avatar = &services.AvatarUpload{Filename: files[0].Filename, Data: data}
	return in, nil
}

func accountPage(identity types.User, username, email string) views.Page {
	return views.Page{
		Title:    "Account",
		Form:     map[string]string{"username": username, "email": email},
		ImageURL: views.AvatarURL(identity.ImageFile),
	}
}
