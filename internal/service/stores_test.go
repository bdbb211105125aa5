package service

import (
	"context"
	"sync"

	"kindertrack/auth-identity/internal/model"
	"kindertrack/auth-identity/internal/repository"
)

// In-memory store fakes mirroring the repository's contract, including
// lookup-time exclusion of soft-deleted users and the conditional revoke.

type memUserStore struct {
	mu      sync.Mutex
	users   map[string]model.User
	schools map[string]bool
}

func newMemUserStore(schools ...string) *memUserStore {
	s := &memUserStore{users: map[string]model.User{}, schools: map[string]bool{}}
	for _, id := range schools {
		s.schools[id] = true
	}
	return s
}

func (s *memUserStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email && !user.Deleted {
			return user, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *memUserStore) GetUserByID(_ context.Context, userID string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || user.Deleted {
		return model.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (s *memUserStore) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email && !user.Deleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *memUserStore) CreateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *memUserStore) SchoolExists(_ context.Context, schoolID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schools[schoolID], nil
}

func (s *memUserStore) markDeleted(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[userID]
	user.Deleted = true
	s.users[userID] = user
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]model.RefreshToken
	users  *memUserStore
}

func newMemTokenStore(users *memUserStore) *memTokenStore {
	return &memTokenStore{tokens: map[string]model.RefreshToken{}, users: users}
}

func (s *memTokenStore) CreateRefreshToken(_ context.Context, token model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *memTokenStore) FindActiveRefreshToken(_ context.Context, tokenHash string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.tokens {
		if token.TokenHash != tokenHash || token.Revoked {
			continue
		}
		if owner, ok := s.users.users[token.UserID]; !ok || owner.Deleted {
			continue
		}
		return token, nil
	}
	return model.RefreshToken{}, repository.ErrNotFound
}

func (s *memTokenStore) RevokeRefreshToken(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenID]
	if !ok || token.Revoked {
		return false, nil
	}
	token.Revoked = true
	s.tokens[tokenID] = token
	return true, nil
}

func (s *memTokenStore) RevokeAllUserTokens(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, token := range s.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			s.tokens[id] = token
			count++
		}
	}
	return count, nil
}

func (s *memTokenStore) expireToken(tokenHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, token := range s.tokens {
		if token.TokenHash == tokenHash {
			token.ExpiresAt = token.CreatedAt.Add(-1)
			s.tokens[id] = token
		}
	}
}

func (s *memTokenStore) activeCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && !token.Revoked {
			count++
		}
	}
	return count
}
