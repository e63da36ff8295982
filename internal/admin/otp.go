package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// OTPStore keeps one pending verification code per email and enforces the
// request rate limit.
type OTPStore interface {
	// Allow counts one code request for email and reports whether it is
	// within the rate limit.
	Allow(ctx context.Context, email string) (bool, error)
	// Save replaces any pending code for email.
	Save(ctx context.Context, email, code string) error
	// Verify consumes one attempt. A correct code deletes the session, as
	// does exceeding the attempt limit.
	Verify(ctx context.Context, email, code string) (bool, error)
}

// GenerateOTP returns a random six-digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type otpSession struct {
	code      string
	expiresAt time.Time
	attempts  int
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryOTPStore keeps codes in process memory. Sweep drops expired
// entries; without it they are only dropped when touched.
type MemoryOTPStore struct {
	ttl         time.Duration
	maxAttempts int
	limit       int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*otpSession
	rates    map[string]*rateWindow
}

// NewMemoryOTPStore applies the limits of cfg.
func NewMemoryOTPStore(cfg Config) *MemoryOTPStore {
	cfg.applyDefaults()
	return &MemoryOTPStore{
		ttl:         cfg.OTPTTL,
		maxAttempts: cfg.OTPMaxAttempts,
		limit:       cfg.RateLimit,
		window:      cfg.RateLimitWindow,
		now:         time.Now,
		sessions:    make(map[string]*otpSession),
		rates:       make(map[string]*rateWindow),
	}
}

func (s *MemoryOTPStore) Allow(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w, ok := s.rates[email]
	if !ok || now.After(w.resetAt) {
		s.rates[email] = &rateWindow{count: 1, resetAt: now.Add(s.window)}
		return true, nil
	}
	if w.count >= s.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

func (s *MemoryOTPStore) Save(ctx context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[email] = &otpSession{code: code, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryOTPStore) Verify(ctx context.Context, email, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[email]
	if !ok {
		return false, nil
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, email)
		return false, nil
	}
	sess.attempts++
	if sess.attempts > s.maxAttempts {
		delete(s.sessions, email)
		return false, nil
	}
	if codesEqual(sess.code, code) {
		delete(s.sessions, email)
		return true, nil
	}
	return false, nil
}

// Sweep removes expired sessions and rate windows.
func (s *MemoryOTPStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for email, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, email)
		}
	}
	for email, w := range s.rates {
		if now.After(w.resetAt) {
			delete(s.rates, email)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryOTPStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
