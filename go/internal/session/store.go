package session

import (
	"context"
	"sync"
)

// StoredPair is what survives a restart of the client.
type StoredPair struct {
	AccessToken  string `yaml:"token" json:"token"`
	RefreshToken string `yaml:"refresh_token,omitempty" json:"refreshToken,omitempty"`
}

// Store is a durable key-value home for the credential pair.
// Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load(ctx context.Context) (*StoredPair, error)
	Save(ctx context.Context, pair StoredPair) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the pair in process memory only.
type MemoryStore struct {
	mu   sync.Mutex
	pair *StoredPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*StoredPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == nil {
		return nil, nil
	}
	cp := *s.pair
	return &cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, pair StoredPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = &pair
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
	return nil
}
