package users

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// credentials keeps password hashes beside the user records, keyed by id.
type credentials struct {
	mu       sync.RWMutex
	cost     int
	hashes   map[string][]byte
	generate func(password []byte, cost int) ([]byte, error)
}

func newCredentials(cost int) *credentials {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &credentials{cost: cost, hashes: make(map[string][]byte), generate: bcrypt.GenerateFromPassword}
}

// hash is slow and takes no lock, so callers run it before entering the
// store's critical section.
func (c *credentials) hash(password string) ([]byte, error) {
	return c.generate([]byte(password), c.cost)
}

func (c *credentials) put(userID string, hash []byte) {
	c.mu.Lock()
	c.hashes[userID] = hash
	c.mu.Unlock()
}

func (c *credentials) check(userID, password string) bool {
	c.mu.RLock()
	hash, ok := c.hashes[userID]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

func (c *credentials) drop(userID string) {
	c.mu.Lock()
	delete(c.hashes, userID)
	c.mu.Unlock()
}
