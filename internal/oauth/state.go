package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	stateTTL        = 10 * time.Minute
	stateMaxPending = 4096
)

// StateStore remembers the provider of each pending authorization request.
// States are single use and expire after ten minutes.
type StateStore struct {
	items *expirable.LRU[string, Provider]
}

func NewStateStore() *StateStore {
	return &StateStore{items: expirable.NewLRU[string, Provider](stateMaxPending, nil, stateTTL)}
}

func (s *StateStore) Create(p Provider) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := hex.EncodeToString(buf)
	s.items.Add(state, p)
	return state, nil
}

// Consume returns the provider bound to state and forgets it.
func (s *StateStore) Consume(state string) (Provider, bool) {
	p, ok := s.items.Peek(state)
	if !ok {
		return 0, false
	}
	if !s.items.Remove(state) {
		return 0, false
	}
	return p, true
}
