package application

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/infrastructure/memory"
	"github.com/oksasatya/coherency-auth/pkg/helpers"
)

var errBoom = errors.New("boom")

// fakeHasher is deterministic and cheap; it never touches argon2.
type fakeHasher struct {
	saltErr   error
	hashErr   error
	verifyErr error
	panics    bool
	verifies  int
}

func (h *fakeHasher) Scheme() string { return "Argon2id" }

func (h *fakeHasher) GenerateSalt() (string, error) {
	if h.saltErr != nil {
		return "", h.saltErr
	}
	return "c2FsdA==", nil
}

func (h *fakeHasher) Hash(_ context.Context, password, salt string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "digest:" + salt + ":" + password, nil
}

func (h *fakeHasher) Verify(ctx context.Context, password, salt, digest string) (bool, error) {
	h.verifies++
	if h.panics {
		panic("verify")
	}
	if h.verifyErr != nil {
		return false, h.verifyErr
	}
	want, _ := h.Hash(ctx, password, salt)
	return want == digest, nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// failingAttempts wraps the memory ledger store and fails Create on demand.
type failingAttempts struct {
	*memory.LoginAttemptRepository
	fail bool
}

func (f *failingAttempts) Create(ctx context.Context, a *entity.LoginAttempt) error {
	if f.fail {
		return errBoom
	}
	return f.LoginAttemptRepository.Create(ctx, a)
}

// failingCreds wraps the memory credential store and fails Create on demand.
type failingCreds struct {
	*memory.CredentialRepository
	fail bool
}

func (f *failingCreds) Create(ctx context.Context, c *entity.Credential) error {
	if f.fail {
		return errBoom
	}
	return f.CredentialRepository.Create(ctx, c)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, body)
	return p.err
}

type fakeGate struct {
	keys     []string
	released int
	err      error
}

func (g *fakeGate) Acquire(_ context.Context, key string) (func(), error) {
	if g.err != nil {
		return nil, g.err
	}
	g.keys = append(g.keys, key)
	return func() { g.released++ }, nil
}

type fixture struct {
	svc      *AuthService
	users    *memory.UserRepository
	creds    *failingCreds
	attempts *failingAttempts
	hasher   *fakeHasher
	tokens   *helpers.JWTManager
	clock    *testClock
	policy   LockoutPolicy
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	tokens, err := helpers.NewJWTManager(helpers.JWTConfig{
		SecretKey: "unit-test-secret",
		Issuer:    "coherency-auth",
		Audience:  "coherency-clients",
		TTL:       60 * time.Minute,
	}, helpers.WithJWTClock(clock.Now))
	require.NoError(t, err)

	creds := &failingCreds{CredentialRepository: memory.NewCredentialRepository()}
	f := &fixture{
		users:    memory.NewUserRepository(creds),
		creds:    creds,
		attempts: &failingAttempts{LoginAttemptRepository: memory.NewLoginAttemptRepository()},
		hasher:   &fakeHasher{},
		tokens:   tokens,
		clock:    clock,
		policy:   DefaultLockoutPolicy(),
	}
	logger := quietLogger()
	ledger := NewAttemptLedger(f.attempts, logger)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	f.svc = NewAuthService(f.users, f.creds, ledger, f.hasher, f.tokens, f.policy, logger, opts...)
	return f
}

func (f *fixture) register(t *testing.T, username, email, password string) *UserView {
	t.Helper()
	v, err := f.svc.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	return v
}

func (f *fixture) login(email, password string) (*LoginResult, error) {
	return f.loginAs(email, password, "test-agent")
}

func (f *fixture) loginAs(email, password, agent string) (*LoginResult, error) {
	return f.svc.Login(context.Background(), LoginInput{Email: email, Password: password, IPAddress: "203.0.113.7", UserAgent: agent})
}

func (f *fixture) credential(t *testing.T, userID string) *entity.Credential {
	t.Helper()
	c, err := f.creds.GetByUserID(context.Background(), userID)
	require.NoError(t, err)
	return c
}

func (f *fixture) lastAttempt(t *testing.T) entity.LoginAttempt {
	t.Helper()
	all := f.attempts.All()
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

func requireKind(t *testing.T, err error, kind Kind, reason string) *AuthError {
	t.Helper()
	var ae *AuthError
	require.True(t, errors.As(err, &ae), "expected AuthError, got %v", err)
	require.Equal(t, kind, ae.Kind, ae.Error())
	if reason != "" {
		require.Equal(t, reason, ae.Reason)
	}
	return ae
}
