package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-admin/internal/shared"
	"github.com/odyssey-erp/odyssey-admin/internal/view"
)

// Directory is the part of Store the dashboard depends on.
type Directory interface {
	Users() []User
	User(id string) (User, bool)
	CurrentUser() (User, bool)
	Admins() []User
	Search(query string) []User
	Stats() Stats
	AddUser(ctx context.Context, data NewUser)
	UpdateUser(ctx context.Context, id string, patch UserPatch)
	DeleteUser(ctx context.Context, id string)
	ChangePassword(ctx context.Context, userID, newPassword string) *PasswordTask
}

// HandlerConfig tunes dashboard behaviour.
type HandlerConfig struct {
	PerPage int
	// PasswordWait bounds how long a request waits for ChangePassword.
	PasswordWait time.Duration
}

// Handler serves the user management pages.
type Handler struct {
	logger    *slog.Logger
	store     Directory
	templates *view.Engine
	csrf      *shared.CSRFManager
	idem      *shared.IdempotencyStore
	validator *validator.Validate
	cfg       HandlerConfig
}

// NewHandler builds Handler instance.
// idem may be nil, which disables duplicate-submission checks.
func NewHandler(logger *slog.Logger, store Directory, templates *view.Engine, csrf *shared.CSRFManager, idem *shared.IdempotencyStore, cfg HandlerConfig) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 20
	}
	if cfg.PasswordWait <= 0 {
		cfg.PasswordWait = 5 * time.Second
	}
	return &Handler{logger: logger, store: store, templates: templates, csrf: csrf, idem: idem, validator: newValidator(), cfg: cfg}
}

// MountRoutes registers dashboard routes under /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/settings", http.StatusSeeOther)
	})
	r.Get("/settings", h.showSettings)
	r.Get("/password", h.showPasswordForm)
	r.Post("/password", h.changePassword)
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Get("/new", h.showCreateUserForm)
		r.Post("/", h.createUser)
		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/edit", h.showEditUserForm)
			r.Post("/", h.updateUser)
			r.Post("/promote", h.promoteUser)
			r.Post("/demote", h.demoteUser)
			r.Get("/delete", h.confirmDeleteUser)
			r.Post("/delete", h.deleteUser)
		})
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	matched := h.store.Search(query)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pagination := shared.NewPagination(page, h.cfg.PerPage, len(matched))
	start, end := pagination.Bounds()
	h.render(w, r, "pages/users.html", "User Management", map[string]any{
		"Users":      matched[start:end],
		"Query":      query,
		"Pagination": pagination,
		"Stats":      h.store.Stats(),
	}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/user_new.html", "Add User", map[string]any{"Form": newUserForm{IdempotencyKey: uuid.NewString()}, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := newUserForm{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		IsAdmin:         r.PostFormValue("isAdmin") == "on",
		IdempotencyKey:  r.PostFormValue("idempotency_key"),
	}
	if errs := validateForm(h.validator, form); len(errs) > 0 {
		form.Password, form.ConfirmPassword = "", ""
		h.render(w, r, "pages/user_new.html", "Add User", map[string]any{"Form": form, "Errors": errs}, http.StatusBadRequest)
		return
	}
	if h.idem != nil && form.IdempotencyKey != "" {
		err := h.idem.CheckAndInsert(r.Context(), form.IdempotencyKey, "users.create")
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			h.flash(r, shared.FlashMessage{Kind: "info", Message: "This user has already been submitted"})
			http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
			return
		}
		if err != nil {
			h.logger.Warn("idempotency check", slog.Any("error", err))
		}
	}
	h.mutate(r, func(ctx context.Context) {
		h.store.AddUser(ctx, NewUser{Name: form.Name, Email: form.Email, IsAdmin: form.IsAdmin})
	})
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

func (h *Handler) showEditUserForm(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r)
	if !ok {
		return
	}
	form := editUserForm{Name: user.Name, Email: user.Email}
	h.render(w, r, "pages/user_edit.html", "Edit User", map[string]any{"User": user, "Form": form, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "userID")
	form := editUserForm{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
	}
	if errs := validateForm(h.validator, form); len(errs) > 0 {
		user, ok := h.lookup(w, r)
		if !ok {
			return
		}
		h.render(w, r, "pages/user_edit.html", "Edit User", map[string]any{"User": user, "Form": form, "Errors": errs}, http.StatusBadRequest)
		return
	}
	h.mutate(r, func(ctx context.Context) {
		h.store.UpdateUser(ctx, id, UserPatch{Name: &form.Name, Email: &form.Email})
	})
	http.Redirect(w, r, h.backToList(r), http.StatusSeeOther)
}

func (h *Handler) promoteUser(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, true)
}

func (h *Handler) demoteUser(w http.ResponseWriter, r *http.Request) {
	h.setAdmin(w, r, false)
}

func (h *Handler) setAdmin(w http.ResponseWriter, r *http.Request, admin bool) {
	id := chi.URLParam(r, "userID")
	h.mutate(r, func(ctx context.Context) {
		h.store.UpdateUser(ctx, id, UserPatch{IsAdmin: &admin})
	})
	http.Redirect(w, r, h.backToList(r), http.StatusSeeOther)
}

func (h *Handler) confirmDeleteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/user_delete.html", "Delete User", map[string]any{"User": user}, http.StatusOK)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	h.mutate(r, func(ctx context.Context) {
		h.store.DeleteUser(ctx, id)
	})
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

type passwordPageData struct {
	Admins       []User
	Form         passwordForm
	Requirements []Requirement
	Errors       formErrors
}

func (h *Handler) showPasswordForm(w http.ResponseWriter, r *http.Request) {
	data := passwordPageData{
		Admins:       h.store.Admins(),
		Form:         passwordForm{UserID: r.URL.Query().Get("user")},
		Requirements: PasswordRequirements(""),
		Errors:       formErrors{},
	}
	h.render(w, r, "pages/password.html", "Change Password", data, http.StatusOK)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := passwordForm{
		UserID:          r.PostFormValue("userId"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}
	errs := validateForm(h.validator, form)
	admins := h.store.Admins()
	if _, seen := errs["UserID"]; !seen && !containsUser(admins, form.UserID) {
		errs["UserID"] = "Select an administrator account"
	}
	if len(errs) > 0 {
		data := passwordPageData{
			Admins:       admins,
			Form:         passwordForm{UserID: form.UserID},
			Requirements: PasswordRequirements(form.Password),
			Errors:       errs,
		}
		h.render(w, r, "pages/password.html", "Change Password", data, http.StatusBadRequest)
		return
	}

	buf := &NotificationBuffer{}
	task := h.store.ChangePassword(ContextWithNotifier(r.Context(), buf), form.UserID, form.Password)
	waitCtx, cancel := context.WithTimeout(r.Context(), h.cfg.PasswordWait)
	defer cancel()
	if _, err := task.Wait(waitCtx); err != nil {
		h.logger.Warn("password change still pending", slog.String("user_id", form.UserID), slog.Any("error", err))
		h.flash(r, shared.FlashMessage{Kind: "info", Message: "Password change is still being processed"})
	}
	h.flashNotifications(r, buf.Drain())
	http.Redirect(w, r, "/admin/password", http.StatusSeeOther)
}

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/settings.html", "Settings", map[string]any{"Stats": h.store.Stats()}, http.StatusOK)
}

// mutate runs fn with a request-scoped notifier and turns the resulting
// notifications into flash messages.
func (h *Handler) mutate(r *http.Request, fn func(ctx context.Context)) {
	buf := &NotificationBuffer{}
	fn(ContextWithNotifier(r.Context(), buf))
	h.flashNotifications(r, buf.Drain())
}

func (h *Handler) flashNotifications(r *http.Request, items []Notification) {
	for _, n := range items {
		h.flash(r, shared.FlashMessage{Kind: n.Kind, Message: n.Message})
	}
}

func (h *Handler) flash(r *http.Request, msg shared.FlashMessage) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(msg)
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (User, bool) {
	user, ok := h.store.User(chi.URLParam(r, "userID"))
	if !ok {
		h.flash(r, shared.FlashMessage{Kind: KindError, Message: "User not found"})
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
		return User{}, false
	}
	return user, true
}

// backToList keeps the search query when returning to the list.
func (h *Handler) backToList(r *http.Request) string {
	if q := strings.TrimSpace(r.PostFormValue("q")); q != "" {
		return "/admin/users?q=" + url.QueryEscape(q)
	}
	return "/admin/users"
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Busy:        h.store.Stats().Busy,
		Data:        data,
	}
	if current, ok := h.store.CurrentUser(); ok {
		viewData.CurrentUser = &view.Viewer{Name: current.Name, Email: current.Email, IsAdmin: current.IsAdmin}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func containsUser(list []User, id string) bool {
	for _, u := range list {
		if u.ID == id {
			return true
		}
	}
	return false
}
