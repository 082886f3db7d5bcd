package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/inkwell/internal/services"
	"github.com/inkwell-blog/inkwell/internal/views"
)

// PostHandler provides the home page and post CRUD pages.
type PostHandler struct {
	pages
	postService *services.PostService
}

func NewPostHandler(deps Dependencies) *PostHandler {
	return &PostHandler{
		pages:       deps.pages(),
		postService: deps.Posts,
	}
}

// PostRouter registers post routes. Mutating routes go through requireAuth.
func PostRouter(r chi.Router, handler *PostHandler, requireAuth func(http.Handler) http.Handler) {
	r.Get("/", handler.Home)
	r.Get("/home", handler.Home)
	r.Get("/about", handler.About)

	r.Route("/post", func(r chi.Router) {
		r.With(requireAuth).Get("/new", handler.NewPost)
		r.With(requireAuth).Post("/new", handler.CreatePost)
		r.Route("/{postID}", func(r chi.Router) {
			r.Get("/", handler.GetPost)
			r.With(requireAuth).Get("/update", handler.EditPost)
			r.With(requireAuth).Post("/update", handler.UpdatePost)
			r.With(requireAuth).Post("/delete", handler.DeletePost)
		})
	})
}

func (h *PostHandler) Home(w http.ResponseWriter, r *http.Request) {
	posts, err := h.postService.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "home", views.Page{Posts: posts})
}

func (h *PostHandler) About(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "about", views.Page{Title: "About"})
}

func (h *PostHandler) NewPost(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "create_post", newPostPage(nil))
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}

	in := postInput(r)
	if _, err := h.postService.Create(r.Context(), identity, in); err != nil {
		if verr, ok := services.AsValidationError(err); ok {
			h.render(w, r, http.StatusUnprocessableEntity, "create_post", validationPage(newPostPage(&in), verr))
			return
		}
		h.fail(w, r, err)
		return
	}

	redirect(w, r, "/")
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := parsePostID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	post, err := h.postService.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	identity, ok := IdentityFromContext(r.Context())
	h.render(w, r, http.StatusOK, "post", views.Page{
		Title:   post.Title,
		Post:    &post,
		CanEdit: ok && post.OwnedBy(identity.ID),
	})
}

// EditPost shows the update form pre-filled with the stored post.
func (h *PostHandler) EditPost(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := parsePostID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	post, err := h.postService.Editable(r.Context(), identity, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "create_post", updatePostPage(post.ID, services.PostInput{
		Title:   post.Title,
		Content: post.Content,
	}))
}

func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := parsePostID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}

	in := postInput(r)
	if _, err := h.postService.Update(r.Context(), identity, id, in); err != nil {
		if verr, ok := services.AsValidationError(err); ok {
			h.render(w, r, http.StatusUnprocessableEntity, "create_post", validationPage(updatePostPage(id, in), verr))
			return
		}
		h.fail(w, r, err)
		return
	}

	redirect(w, r, postURL(id))
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	id, err := parsePostID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.postService.Delete(r.Context(), identity, id); err != nil {
		h.fail(w, r, err)
		return
	}

	redirect(w, r, "/")
}

func postInput(r *http.Request) services.PostInput {
	return services.PostInput{
		Title:   r.PostFormValue("title"),
		Content: r.PostFormValue("content"),
	}
}

func postURL(id int) string {
	return fmt.Sprintf("/post/%d", id)
}

func newPostPage(in *services.PostInput) views.Page {
	page := views.Page{Title: "New Post", Legend: "New Post", Action: "/post/new"}
	if in != nil {
		page.Form = map[string]string{"title": in.Title, "content": in.Content}
	}
	return page
}

func updatePostPage(id int, in services.PostInput) views.Page {
	return views.Page{
		Title:  "Update Post",
		Legend: "Update Post",
		Action: postURL(id) + "/update",
		Form:   map[string]string{"title": in.Title, "content": in.Content},
	}
}
