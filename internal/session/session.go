// Package session is the identity provider: it registers accounts, signs
// users in and out, resolves bearer tokens to identities and tells
// subscribers when any of that happens.
package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/lostfound/internal/auth"
	"github.com/erazemk/lostfound/internal/model"
	"github.com/erazemk/lostfound/internal/store"
	"github.com/erazemk/lostfound/internal/validation"
)

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("session manager closed")

// ErrRevoked is returned by Current for tokens that were signed out.
var ErrRevoked = errors.New("token revoked")

// EventKind names a session change.
type EventKind string

// Session changes delivered to subscribers.
const (
	EventRegistered EventKind = "registered"
	EventSignedIn   EventKind = "signed_in"
	EventSignedOut  EventKind = "signed_out"
)

// Event is delivered to subscribers after a session change has been
// persisted.
type Event struct {
	Kind     EventKind
	Identity model.Identity
}

// Session is an authenticated identity and the bearer token proving it.
type Session struct {
	Token     string         `json:"token"`
	Identity  model.Identity `json:"identity"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// RegisterRequest holds the fields needed to open an account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=72"`
	Name        string `json:"name" validate:"max=100"`
	InviteToken string `json:"invite_token" validate:"omitempty,uuid"`
}

// Manager is constructed once per process and passed to whatever needs
// identities. It must be closed on shutdown.
type Manager struct {
	db     *sql.DB
	secret string
	ttl    time.Duration
	cost   int

	mu     sync.Mutex
	subs   map[uint64]func(Event)
	nextID uint64
	closed bool
}

// NewManager returns a Manager that signs tokens with secret. A zero ttl
// uses auth.TokenExpiry.
func NewManager(db *sql.DB, secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = auth.TokenExpiry
	}
	return &Manager{
		db:     db,
		secret: secret,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		subs:   make(map[uint64]func(Event)),
	}
}

// Register creates an account. A valid invite token makes it an admin.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*model.Identity, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), m.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	ident, err := store.CreateIdentity(ctx, m.db, store.NewIdentity{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		InviteToken:  req.InviteToken,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("account registered", "user_id", ident.ID, "role", ident.Role)
	m.emit(Event{Kind: EventRegistered, Identity: *ident})
	return ident, nil
}

// Authenticate checks credentials and opens a session. Unknown emails and
// wrong passwords both return model.ErrInvalidCredentials.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	user, err := store.GetUserByEmail(ctx, m.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Spend the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login failed", "user_id", user.ID)
		return nil, model.ErrInvalidCredentials
	}

	ident, err := m.identity(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	token, claims, err := auth.GenerateToken(m.secret, m.ttl, *ident)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in", "user_id", ident.ID, "role", ident.Role)
	m.emit(Event{Kind: EventSignedIn, Identity: *ident})

	return &Session{Token: token, Identity: *ident, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Current resolves a bearer token to its session. The identity is re-read
// from the profile so role changes apply to existing tokens.
func (m *Manager) Current(ctx context.Context, token string) (*Session, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	claims, err := auth.ValidateToken(m.secret, token)
	if err != nil {
		return nil, err
	}

	revoked, err := store.IsTokenRevoked(ctx, m.db, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	user, err := store.GetUser(ctx, m.db, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, auth.ErrInvalidToken
	}

	ident, err := m.identity(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &Session{Token: token, Identity: *ident, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// SignOut revokes the session's token.
func (m *Manager) SignOut(ctx context.Context, s *Session) error {
	claims, err := auth.ValidateToken(m.secret, s.Token)
	if err != nil {
		return err
	}

	if err := store.RevokeToken(ctx, m.db, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}

	slog.Info("user logged out", "user_id", s.Identity.ID)
	m.emit(Event{Kind: EventSignedOut, Identity: s.Identity})
	return nil
}

// ChangePassword replaces the password of userID after checking the
// current one.
func (m *Manager) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := store.GetUser(ctx, m.db, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return model.ErrInvalidCredentials
	}
	if err := model.ValidatePassword(next); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), m.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := store.UpdateUserPassword(ctx, m.db, userID, string(hash)); err != nil {
		return err
	}

	slog.Info("user changed own password", "user_id", userID)
	return nil
}

// Bootstrap creates the first admin account when no accounts exist yet.
// The generated password is returned so it can be handed over out of band.
func (m *Manager) Bootstrap(ctx context.Context, email string) (password string, created bool, err error) {
	n, err := store.CountUsers(ctx, m.db)
	if err != nil {
		return "", false, err
	}
	if n > 0 {
		return "", false, nil
	}

	password, err = generatePassword()
	if err != nil {
		return "", false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return "", false, fmt.Errorf("hashing password: %w", err)
	}

	ident, err := store.CreateIdentity(ctx, m.db, store.NewIdentity{
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Administrator",
		Role:         model.RoleAdmin,
	})
	if err != nil {
		return "", false, err
	}

	m.emit(Event{Kind: EventRegistered, Identity: *ident})
	return password, true, nil
}

// Subscribe registers fn for every future event. Callbacks run on the
// goroutine that caused the event and must not block. The returned
// function removes the subscription.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return func() {}
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close drops all subscribers. Later calls to Register, Authenticate and
// Current return ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	clear(m.subs)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) emit(e Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// identity loads the profile for userID, creating it on first use, and
// maps the stored role onto the closed set.
func (m *Manager) identity(ctx context.Context, userID int64, email string) (*model.Identity, error) {
	p, err := store.EnsureProfile(ctx, m.db, userID, email)
	if err != nil {
		return nil, err
	}

	role, ok := model.ParseRole(string(p.Role))
	if !ok {
		slog.Warn("unknown role in profile, treating as user", "user_id", userID, "role", string(p.Role))
	}
	p.Role = role
	return p, nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("lostfound-dummy-password"), bcrypt.DefaultCost)
	})
	return dummy
}

func generatePassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
