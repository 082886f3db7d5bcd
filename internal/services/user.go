package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/inkwell-blog/inkwell/internal/store"
	"github.com/inkwell-blog/inkwell/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	usernameMinLen = 2
	usernameMaxLen = 20
	emailMaxLen    = 120
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// EventPublisher receives domain events after successful writes.
type EventPublisher interface {
	Publish(ctx context.Context, event types.Event) error
}

// RegisterInput is the submitted registration form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// AccountInput is the submitted profile form. Avatar is nil when no
// picture was uploaded.
type AccountInput struct {
	Username string
	Email    string
	Avatar   *AvatarUpload
}

// UserService encapsulates registration, login and profile use-cases.
type UserService struct {
	repo     UserRepository
	avatars  *AvatarService
	events   EventPublisher
	logger   *slog.Logger
	hashCost int
}

func NewUserService(repo UserRepository, avatars *AvatarService, events EventPublisher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:     repo,
		avatars:  avatars,
		events:   events,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Register validates the form, hashes the password and stores a new user.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	verr := &ValidationError{}
	validateProfile(verr, in.Username, in.Email)
	if in.Password == "" {
		verr.Add("password", "This field is required.")
	}
	if in.ConfirmPassword != in.Password {
		verr.Add("confirm_password", "Field must be equal to password.")
	}
	if err := s.checkAvailable(ctx, verr, 0, in.Username, in.Email); err != nil {
		return types.User{}, err
	}
	if err := verr.orNil(); err != nil {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		ImageFile:    types.DefaultImageFile,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflictError()
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	s.publish(ctx, types.Event{Type: types.EventUserRegistered, UserID: user.ID})
	return user, nil
}

// Authenticate returns the user owning email when password matches its
// hash. Every failure is reported as ErrInvalidCredentials, and an unknown
// email still pays for one hash comparison.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UpdateAccount changes the identity's username, email and optionally its
// avatar. Uniqueness is re-checked for values that changed.
func (s *UserService) UpdateAccount(ctx context.Context, identity types.User, in AccountInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	verr := &ValidationError{}
	validateProfile(verr, in.Username, in.Email)
	if err := s.checkAvailable(ctx, verr, identity.ID, in.Username, in.Email); err != nil {
		return types.User{}, err
	}
	if err := verr.orNil(); err != nil {
		return types.User{}, err
	}

	updated := identity
	updated.Username = in.Username
	updated.Email = in.Email

	var newImage string
	if in.Avatar != nil && s.avatars != nil {
		name, err := s.avatars.Save(ctx, *in.Avatar)
		if err != nil {
			return types.User{}, err
		}
		newImage = name
		updated.ImageFile = name
	}

	saved, err := s.repo.Update(ctx, updated)
	if err != nil {
		if newImage != "" {
			s.removeAvatar(ctx, newImage)
		}
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflictError()
		}
		return types.User{}, fmt.Errorf("update user: %w", err)
	}

	if newImage != "" && identity.ImageFile != newImage {
		s.removeAvatar(ctx, identity.ImageFile)
	}

	s.publish(ctx, types.Event{Type: types.EventUserUpdated, UserID: saved.ID})
	return saved, nil
}

func validateProfile(verr *ValidationError, username, email string) {
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		verr.Add("username", "This field is required.")
	case n < usernameMinLen || n > usernameMaxLen:
		verr.Add("username", fmt.Sprintf("Field must be between %d and %d characters long.", usernameMinLen, usernameMaxLen))
	}

	switch {
	case email == "":
		verr.Add("email", "This field is required.")
	case len(email) > emailMaxLen || !validEmail(email):
		verr.Add("email", "Invalid email address.")
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// checkAvailable flags username or email values already held by a user
// other than selfID. Fields that already failed validation are skipped.
func (s *UserService) checkAvailable(ctx context.Context, verr *ValidationError, selfID int, username, email string) error {
	if !verr.Has("username") {
		existing, err := s.repo.GetByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != selfID:
			verr.Add("username", "That username is taken. Please choose a different one.")
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("check username: %w", err)
		}
	}
	if !verr.Has("email") {
		existing, err := s.repo.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != selfID:
			verr.Add("email", "That email is taken. Please choose a different one.")
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("check email: %w", err)
		}
	}
	return nil
}

// conflictError covers a unique violation that slipped past checkAvailable
// because of a concurrent write.
func conflictError() error {
	verr := &ValidationError{}
	verr.Add("username", "That username or email is taken. Please choose a different one.")
	return verr
}

func (s *UserService) removeAvatar(ctx context.Context, name string) {
	if s.avatars == nil {
		return
	}
	if err := s.avatars.Delete(ctx, name); err != nil {
		s.logger.WarnContext(ctx, "failed to remove avatar", "image_file", name, "error", err)
	}
}

func (s *UserService) publish(ctx context.Context, event types.Event) {
	publishEvent(ctx, s.events, s.logger, event)
}

// publishEvent sends event when a publisher is configured. Failures are
// logged; the write that triggered the event has already committed.
func publishEvent(ctx context.Context, events EventPublisher, logger *slog.Logger, event types.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "type", event.Type, "error", err)
	}
}

var (
	dummyHashOnce sync.Once
	dummyHashVal  []byte
)

func (s *UserService) dummyHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHashVal, _ = bcrypt.GenerateFromPassword([]byte("inkwell-placeholder"), s.hashCost)
	})
	return dummyHashVal
}
