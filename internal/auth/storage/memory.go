package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage implements the Store interface using in-memory storage
type MemoryStorage struct {
	mu sync.RWMutex

	apps    map[string]*Application  // by client id
	access  map[string]*AccessToken  // by id
	refresh map[string]*RefreshToken // by id
}

// NewMemoryStorage creates a new memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		apps:    make(map[string]*Application),
		access:  make(map[string]*AccessToken),
		refresh: make(map[string]*RefreshToken),
	}
}

func (s *MemoryStorage) GetApplication(_ context.Context, clientID string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if app, ok := s.apps[clientID]; ok {
		cp := *app
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetApplicationByID(_ context.Context, id string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, app := range s.apps {
		if app.ID == id {
			cp := *app
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateApplication(_ context.Context, app *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apps[app.ClientID]; exists {
		return ErrAlreadyExists
	}
	app.prepare()
	now := time.Now()
	app.CreatedAt, app.UpdatedAt = now, now
	cp := *app
	s.apps[app.ClientID] = &cp
	return nil
}

func (s *MemoryStorage) GetAccessToken(_ context.Context, token string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, at := range s.access {
		if at.Token == token {
			cp := *at
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetAccessTokenByID(_ context.Context, id string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if at, ok := s.access[id]; ok {
		cp := *at
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetAccessTokenBySource(_ context.Context, refreshID string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, at := range s.access {
		if refreshID != "" && at.SourceRefreshID == refreshID {
			cp := *at
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) LatestAccessToken(_ context.Context, userID uint, appID string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *AccessToken
	for _, at := range s.access {
		if at.UserID != userID || at.ApplicationID != appID {
			continue
		}
		if latest == nil || at.CreatedAt.After(latest.CreatedAt) {
			latest = at
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStorage) GetRefreshToken(_ context.Context, token string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rt := range s.refresh {
		if rt.Token == token {
			return copyRefresh(rt), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetRefreshTokenByAccessID(_ context.Context, accessID string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rt := s.refreshByAccess(accessID); rt != nil {
		return copyRefresh(rt), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) SaveTokenPair(_ context.Context, access *AccessToken, refresh *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putPair(access, refresh)
}

func (s *MemoryStorage) RotateRefreshToken(_ context.Context, oldID string, revokedAt time.Time, access *AccessToken, refresh *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[oldID]
	if !ok || old.IsRevoked() {
		return ErrConflict
	}
	if err := s.checkUnique(access, refresh); err != nil {
		return err
	}
	delete(s.access, old.AccessTokenID)
	stamp := revokedAt
	old.Revoked = &stamp
	old.AccessTokenID = ""
	return s.putPair(access, refresh)
}

func (s *MemoryStorage) RelinkRefreshToken(_ context.Context, refreshID string, access *AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refresh[refreshID]
	if !ok || rt.IsRevoked() {
		return ErrConflict
	}
	if err := s.checkUnique(access, nil); err != nil {
		return err
	}
	delete(s.access, rt.AccessTokenID)
	cp := *access
	s.access[access.ID] = &cp
	rt.AccessTokenID = access.ID
	return nil
}

func (s *MemoryStorage) RevokeFamily(_ context.Context, userID uint, appID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.access {
		if t.UserID == userID && t.ApplicationID == appID {
			delete(s.access, id)
		}
	}
	for _, rt := range s.refresh {
		if rt.UserID != userID || rt.ApplicationID != appID {
			continue
		}
		rt.AccessTokenID = ""
		if !rt.IsRevoked() {
			stamp := at
			rt.Revoked = &stamp
		}
	}
	return nil
}

func (s *MemoryStorage) RevokeRefreshToken(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refresh[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.access, rt.AccessTokenID)
	rt.AccessTokenID = ""
	if !rt.IsRevoked() {
		stamp := at
		rt.Revoked = &stamp
	}
	return nil
}

func (s *MemoryStorage) DeleteAccessToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.access[id]; !ok {
		return ErrNotFound
	}
	delete(s.access, id)
	if rt := s.refreshByAccess(id); rt != nil {
		rt.AccessTokenID = ""
	}
	return nil
}

func (s *MemoryStorage) DeleteAccessTokens(_ context.Context, userID uint, appID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.access {
		if t.UserID != userID || t.ApplicationID != appID {
			continue
		}
		delete(s.access, id)
		if rt := s.refreshByAccess(id); rt != nil {
			rt.AccessTokenID = ""
		}
		n++
	}
	return n, nil
}

func (s *MemoryStorage) DeleteRefreshTokens(_ context.Context, userID uint, appID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rt := range s.refresh {
		if rt.UserID == userID && rt.ApplicationID == appID {
			delete(s.refresh, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// callers must hold mu
func (s *MemoryStorage) refreshByAccess(accessID string) *RefreshToken {
	if accessID == "" {
		return nil
	}
	for _, rt := range s.refresh {
		if rt.AccessTokenID == accessID {
			return rt
		}
	}
	return nil
}

// callers must hold mu
func (s *MemoryStorage) checkUnique(access *AccessToken, refresh *RefreshToken) error {
	for _, at := range s.access {
		if at.ID == access.ID || at.Token == access.Token {
			return ErrAlreadyExists
		}
	}
	if refresh == nil {
		return nil
	}
	for _, rt := range s.refresh {
		if rt.ID == refresh.ID || rt.Token == refresh.Token {
			return ErrAlreadyExists
		}
	}
	return nil
}

// callers must hold mu
func (s *MemoryStorage) putPair(access *AccessToken, refresh *RefreshToken) error {
	if err := s.checkUnique(access, refresh); err != nil {
		return err
	}
	a := *access
	s.access[a.ID] = &a
	s.refresh[refresh.ID] = copyRefresh(refresh)
	return nil
}

func copyRefresh(rt *RefreshToken) *RefreshToken {
	cp := *rt
	if rt.Revoked != nil {
		stamp := *rt.Revoked
		cp.Revoked = &stamp
	}
	return &cp
}
