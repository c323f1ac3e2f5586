// Package authtest provides in-memory doubles for the auth service's storage
// and messaging dependencies. The fakes mirror the postgres repo's contract,
// including the compare-and-swap revocation semantics.
package authtest

import (
	"context"
	"sync"
	"time"

	"stox_auth/internal/models"
	"stox_auth/internal/storage"
)

type FakeStore struct {
	mu sync.Mutex

	nextUserID int64
	users      map[int64]models.User
	roles      map[int64][]string

	refreshTokens map[string]*models.RefreshToken
	resetTokens   map[string]models.PasswordResetToken

	activity []models.ActivityEntry
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		nextUserID:    1,
		users:         make(map[int64]models.User),
		roles:         make(map[int64][]string),
		refreshTokens: make(map[string]*models.RefreshToken),
		resetTokens:   make(map[string]models.PasswordResetToken),
	}
}

func (s *FakeStore) SaveUser(_ context.Context, u models.User, defaultRole string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return 0, storage.ErrUserExists
		}
	}

	u.ID = s.nextUserID
	s.nextUserID++

	s.users[u.ID] = u
	s.roles[u.ID] = []string{defaultRole}
	s.activity = append(s.activity, models.ActivityEntry{
		UserID:       u.ID,
		BusinessName: u.BusinessName,
		Action:       "Registered",
		Timestamp:    time.Now(),
	})

	return u.ID, nil
}

func (s *FakeStore) UserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email && !u.IsDeleted {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (s *FakeStore) UserByID(_ context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.IsDeleted {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (s *FakeStore) UserExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email && !u.IsDeleted {
			return true, nil
		}
	}

	return false, nil
}

func (s *FakeStore) RoleNames(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.roles[userID]...), nil
}

// GrantRole adds a role assignment directly, the way an operator would
// through the database.
func (s *FakeStore) GrantRole(userID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[userID] = append(s.roles[userID], role)
}

func (s *FakeStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.User
	for id := int64(1); id < s.nextUserID; id++ {
		if u, ok := s.users[id]; ok && !u.IsDeleted {
			out = append(out, u)
		}
	}

	return out, nil
}

func (s *FakeStore) SoftDeleteUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.IsDeleted {
		return storage.ErrUserNotFound
	}

	u.IsDeleted = true
	s.users[userID] = u

	return nil
}

func (s *FakeStore) SaveRefreshToken(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[token] = &models.RefreshToken{
		ID:        int64(len(s.refreshTokens) + 1),
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}

	return nil
}

func (s *FakeStore) RevokeRefreshToken(_ context.Context, token string) (models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refreshTokens[token]
	if !ok || !rt.IsActive() {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}

	rt.Revoked = true

	return *rt, nil
}

func (s *FakeStore) RevokeAllRefreshTokens(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rt := range s.refreshTokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}

	return nil
}

// ActiveRefreshTokens counts the user's tokens that could still be exchanged.
func (s *FakeStore) ActiveRefreshTokens(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rt := range s.refreshTokens {
		if rt.UserID == userID && rt.IsActive() {
			n++
		}
	}

	return n
}

// ExpireRefreshToken backdates a token so exchange attempts see it as dead.
func (s *FakeStore) ExpireRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.refreshTokens[token]; ok {
		rt.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

func (s *FakeStore) SavePasswordResetToken(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetTokens[token] = models.PasswordResetToken{
		ID:        int64(len(s.resetTokens) + 1),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	return nil
}

func (s *FakeStore) RedeemPasswordResetToken(_ context.Context, token string, newHash []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prt, ok := s.resetTokens[token]
	if !ok || !prt.ExpiresAt.After(time.Now()) {
		return 0, storage.ErrResetTokenNotFound
	}

	delete(s.resetTokens, token)

	u := s.users[prt.UserID]
	u.PassHash = newHash
	s.users[prt.UserID] = u

	return prt.UserID, nil
}

// ExpireResetToken backdates a reset token.
func (s *FakeStore) ExpireResetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prt, ok := s.resetTokens[token]; ok {
		prt.ExpiresAt = time.Now().Add(-time.Minute)
		s.resetTokens[token] = prt
	}
}

func (s *FakeStore) LogActivity(_ context.Context, userID int64, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity = append(s.activity, models.ActivityEntry{
		UserID:       userID,
		BusinessName: s.users[userID].BusinessName,
		Action:       action,
		Timestamp:    time.Now(),
	})

	return nil
}

func (s *FakeStore) UsersLoggedInToday(_ context.Context) ([]models.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	latest := make(map[int64]models.ActivityEntry)
	for _, e := range s.activity {
		if e.Action != "Logged in" || e.Timestamp.UTC().Before(midnight) {
			continue
		}
		if cur, ok := latest[e.UserID]; !ok || e.Timestamp.After(cur.Timestamp) {
			latest[e.UserID] = e
		}
	}

	var out []models.ActivityEntry
	for _, e := range latest {
		e.Action = ""
		out = append(out, e)
	}

	return out, nil
}

func (s *FakeStore) LatestActivity(_ context.Context, limit int) ([]models.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ActivityEntry
	for i := len(s.activity) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.activity[i])
	}

	return out, nil
}

// Activity returns a copy of the full activity log, oldest first.
func (s *FakeStore) Activity() []models.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.ActivityEntry(nil), s.activity...)
}

// FakePublisher records every message handed to it.
type FakePublisher struct {
	mu       sync.Mutex
	messages []models.EmailMessage

	// Err, when set, is returned from SendMessage after recording.
	Err error
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (p *FakePublisher) SendMessage(_ context.Context, msg models.EmailMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = append(p.messages, msg)

	return p.Err
}

func (p *FakePublisher) Messages() []models.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]models.EmailMessage(nil), p.messages...)
}

// FakeDenylist records revocation cutoffs in memory.
type FakeDenylist struct {
	mu      sync.Mutex
	cutoffs map[int64]time.Time
}

func NewFakeDenylist() *FakeDenylist {
	return &FakeDenylist{cutoffs: make(map[int64]time.Time)}
}

func (d *FakeDenylist) DenyUserTokens(_ context.Context, userID int64, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cutoffs[userID] = time.Now()

	return nil
}

func (d *FakeDenylist) TokensDeniedSince(_ context.Context, userID int64) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff, ok := d.cutoffs[userID]

	return cutoff, ok, nil
}
