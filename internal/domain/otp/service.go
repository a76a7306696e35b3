package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

type Service struct {
	repo     Repository
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: repo, ttl: ttl, now: time.Now, generate: GenerateCode}
}

// TTL is how long an issued code stays valid.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue creates a new code for phone, invalidating any previous one.
func (s *Service) Issue(ctx context.Context, phone string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	if err := s.repo.Upsert(ctx, phone, code, s.now().Add(s.ttl)); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify consumes code for phone. It returns true exactly once per issued
// code and false for wrong, expired or already used codes.
func (s *Service) Verify(ctx context.Context, phone, code string) (bool, error) {
	if !wellFormed(code) {
		return false, nil
	}
	ok, err := s.repo.Consume(ctx, phone, code)
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return ok, nil
}

// Cleanup deletes expired codes and returns how many were removed.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup otp: %w", err)
	}
	return n, nil
}

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a uniformly distributed six digit code from the
// system CSPRNG, zero padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
