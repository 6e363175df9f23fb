package helpers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// HashScheme is the scheme name stored next to every digest.
const HashScheme = "Argon2id"

const (
	saltSize       = 32 // 256 bits
	digestSize     = 32
	minMemoryKB    = 8 * 1024
	maxParallelism = 8
)

var (
	ErrEmptySalt     = errors.New("empty salt")
	ErrInvalidDigest = errors.New("invalid digest encoding")
)

// Argon2Config tunes the memory-hard hashing step.
type Argon2Config struct {
	Time          uint32
	MemoryKB      uint32
	Parallelism   uint8
	MaxConcurrent int64 // concurrent hash computations allowed per process
}

// DefaultArgon2Config returns 4 passes over 64 MiB with parallelism capped at
// the host core count.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Time:          4,
		MemoryKB:      64 * 1024,
		Parallelism:   uint8(min(maxParallelism, runtime.NumCPU())),
		MaxConcurrent: int64(2 * runtime.NumCPU()),
	}
}

// PasswordHasher derives Argon2id digests from a password and a per-credential salt.
// It is safe for concurrent use.
type PasswordHasher struct {
	cfg Argon2Config
	sem *semaphore.Weighted
}

func NewPasswordHasher(cfg Argon2Config) (*PasswordHasher, error) {
	if cfg.Time < 1 {
		return nil, errors.New("argon2 time must be >= 1")
	}
	if cfg.MemoryKB < minMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be >= %d KB", minMemoryKB)
	}
	if cfg.Parallelism < 1 {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	if cfg.MaxConcurrent < 1 {
		return nil, errors.New("argon2 max concurrent must be >= 1")
	}
	return &PasswordHasher{cfg: cfg, sem: semaphore.NewWeighted(cfg.MaxConcurrent)}, nil
}

func (h *PasswordHasher) Scheme() string { return HashScheme }

// GenerateSalt returns 32 bytes from crypto/rand, base64 encoded.
func (h *PasswordHasher) GenerateSalt() (string, error) {
	b := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("read random salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Hash returns the base64 digest of password under salt. The same inputs
// always produce the same digest.
func (h *PasswordHasher) Hash(ctx context.Context, password, salt string) (string, error) {
	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return "", err
	}
	sum, err := h.derive(ctx, password, rawSalt)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sum), nil
}

// Verify recomputes the digest and compares it in constant time.
func (h *PasswordHasher) Verify(ctx context.Context, password, salt, digest string) (bool, error) {
	rawSalt, err := decodeSalt(salt)
	if err != nil {
		return false, err
	}
	want, err := base64.StdEncoding.DecodeString(digest)
	if err != nil || len(want) == 0 {
		return false, ErrInvalidDigest
	}
	got, err := h.derive(ctx, password, rawSalt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func (h *PasswordHasher) derive(ctx context.Context, password string, salt []byte) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for hash slot: %w", err)
	}
	defer h.sem.Release(1)
	return argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.MemoryKB, h.cfg.Parallelism, digestSize), nil
}

func decodeSalt(salt string) ([]byte, error) {
	if salt == "" {
		return nil, ErrEmptySalt
	}
	b, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt encoding: %w", err)
	}
	if len(b) == 0 {
		return nil, ErrEmptySalt
	}
	return b, nil
}
