package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	ErrPairingInvalid = errors.New("pairing code invalid")
	ErrPairingExpired = errors.New("pairing code expired")
)

// Pairing is a code waiting to be typed into a client.
type Pairing struct {
	Code      string
	RequestID string
	ExpiresAt time.Time
}

// PairingStore holds pending pairing codes in memory. Codes are single use:
// redeeming one removes it whether or not it was still valid.
type PairingStore struct {
	mu      sync.Mutex
	pending map[string]Pairing
	ttl     time.Duration
	now     func() time.Time
}

// NewPairingStore creates a store whose codes live for ttl.
func NewPairingStore(ttl time.Duration) *PairingStore {
	return &PairingStore{
		pending: make(map[string]Pairing),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL reports how long a code stays valid.
func (s *PairingStore) TTL() time.Duration {
	return s.ttl
}

// Start issues a fresh six-digit code tied to the request that asked for it.
func (s *PairingStore) Start(requestID string) (Pairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	for range 10 {
		code, err := pairingCode()
		if err != nil {
			return Pairing{}, err
		}
		if _, taken := s.pending[code]; taken {
			continue
		}
		p := Pairing{Code: code, RequestID: requestID, ExpiresAt: s.now().Add(s.ttl)}
		s.pending[code] = p
		return p, nil
	}
	return Pairing{}, errors.New("unable to generate unique pairing code")
}

// Redeem consumes code. It fails with ErrPairingInvalid for unknown codes
// and ErrPairingExpired for codes past their deadline.
func (s *PairingStore) Redeem(code string) (Pairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[code]
	if !ok {
		return Pairing{}, ErrPairingInvalid
	}
	delete(s.pending, code)
	if s.now().After(p.ExpiresAt) {
		return Pairing{}, ErrPairingExpired
	}
	return p, nil
}

// Pending returns the number of codes not yet redeemed or swept.
func (s *PairingStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep drops expired codes.
func (s *PairingStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
}

func (s *PairingStore) sweepLocked() {
	now := s.now()
	for code, p := range s.pending {
		if now.After(p.ExpiresAt) {
			delete(s.pending, code)
		}
	}
}

// Run sweeps every interval until ctx is done, then forgets every code.
func (s *PairingStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			s.mu.Lock()
			s.pending = make(map[string]Pairing)
			s.mu.Unlock()
			return
		}
	}
}

func pairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
