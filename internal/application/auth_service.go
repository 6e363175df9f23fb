package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	repo "github.com/oksasatya/coherency-auth/internal/domain/repository"
	"github.com/oksasatya/coherency-auth/pkg/helpers"
)

const defaultHistoryLimit = 50

// decoySalt and decoyDigest are 32 zero bytes. Verifying against them keeps an
// unknown email as slow as a wrong password.
const (
	decoySalt   = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	decoyDigest = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
)

// CredentialHasher is satisfied by *helpers.PasswordHasher.
type CredentialHasher interface {
	Scheme() string
	GenerateSalt() (string, error)
	Hash(ctx context.Context, password, salt string) (string, error)
	Verify(ctx context.Context, password, salt, digest string) (bool, error)
}

// TokenIssuer is satisfied by *helpers.JWTManager.
type TokenIssuer interface {
	Issue(id helpers.Identity) (helpers.Token, error)
}

// AccountGate serializes login decisions for one account key.
type AccountGate interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// LockoutPolicy is fixed at construction. A zero FailedAttemptWindow keeps
// failures counted until a successful login or a served lockout.
type LockoutPolicy struct {
	MaxFailedAttempts   int
	LockoutDuration     time.Duration
	FailedAttemptWindow time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailedAttempts:   5,
		LockoutDuration:     30 * time.Minute,
		FailedAttemptWindow: 15 * time.Minute,
	}
}

type AuthService struct {
	users  repo.UserRepository
	creds  repo.CredentialRepository
	ledger *AttemptLedger
	hasher CredentialHasher
	tokens TokenIssuer
	policy LockoutPolicy
	gate   AccountGate
	now    func() time.Time
	logger *logrus.Logger
}

type Option func(*AuthService)

func WithAccountGate(g AccountGate) Option {
	return func(s *AuthService) { s.gate = g }
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(users repo.UserRepository, creds repo.CredentialRepository, ledger *AttemptLedger, hasher CredentialHasher, tokens TokenIssuer, policy LockoutPolicy, logger *logrus.Logger, opts ...Option) *AuthService {
	def := DefaultLockoutPolicy()
	if policy.MaxFailedAttempts <= 0 {
		policy.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = def.LockoutDuration
	}
	if policy.FailedAttemptWindow < 0 {
		policy.FailedAttemptWindow = 0
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &AuthService{
		users:  users,
		creds:  creds,
		ledger: ledger,
		hasher: hasher,
		tokens: tokens,
		policy: policy,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
	RequestID string
}

// UserView is the user projection returned to clients.
type UserView struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName,omitempty"`
	LastName        string     `json:"lastName,omitempty"`
	IsActive        bool       `json:"isActive"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}

func NewUserView(u *entity.User) *UserView {
	return &UserView{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		LastLoginAt:     u.LastLoginAt,
	}
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *UserView
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login runs the lockout state machine for one call. Exactly one attempt is
// written to the ledger unless the input is rejected as empty.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, &AuthError{Kind: KindValidation, Reason: ReasonInvalidInput}
	}
	log := s.logger.WithFields(logrus.Fields{"email": email, "request_id": in.RequestID})
	attempt := &entity.LoginAttempt{
		Email:     strings.TrimSpace(in.Email),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}

	var (
		res *LoginResult
		err error
	)
	release, gerr := s.acquire(ctx, email)
	if gerr != nil {
		err = s.reject(attempt, entity.AttemptFailed, storageErr(entity.ReasonInternalError, gerr))
	} else {
		res, err = func() (*LoginResult, error) {
			defer release()
			return s.decide(ctx, email, in.Password, attempt, log)
		}()
	}

	attempt.AttemptedAt = s.now()
	attempt.Sanitize()
	_ = s.ledger.Record(ctx, attempt)
	s.logOutcome(log, attempt, err)
	if attempt.Result == entity.AttemptFailed {
		s.watchRecentFailures(ctx, log, email)
	}
	return res, err
}

func (s *AuthService) acquire(ctx context.Context, email string) (func(), error) {
	if s.gate == nil {
		return func() {}, nil
	}
	return s.gate.Acquire(ctx, "login:"+email)
}

func (s *AuthService) decide(ctx context.Context, email, password string, at *entity.LoginAttempt, log *logrus.Entry) (*LoginResult, error) {
	now := s.now()

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, s.reject(at, entity.AttemptFailed, storageErr(entity.ReasonInternalError, err))
	}
	if u == nil {
		_, _ = s.hasher.Verify(ctx, password, decoySalt, decoyDigest)
		return nil, s.reject(at, entity.AttemptFailed, &AuthError{Kind: KindAuthentication, Reason: entity.ReasonUserNotFound})
	}
	uid := u.ID
	at.UserID = &uid
	log = log.WithField("user_id", u.ID)

	cred, err := s.creds.GetByUserID(ctx, u.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, s.reject(at, entity.AttemptFailed, storageErr(entity.ReasonInternalError, err))
	}

	var cutoff time.Time
	if cred != nil {
		if cred.LockedAt(now) {
			until := *cred.AccountLockedUntil
			return nil, s.reject(at, entity.AttemptBlocked, &AuthError{Kind: KindLockout, Reason: entity.ReasonAccountLocked, LockedUntil: &until})
		}
		cutoff = s.failureCutoff(cred, now)
		if cred.FailuresSince(cutoff) >= s.policy.MaxFailedAttempts {
			until := now.Add(s.policy.LockoutDuration)
			if err := s.creds.LockAccount(ctx, u.ID, until); err != nil {
				return nil, s.reject(at, entity.AttemptFailed, storageErr(entity.ReasonInternalError, err))
			}
			log.WithField("locked_until", until).Warn("account locked after repeated failures")
			return nil, s.reject(at, entity.AttemptBlocked, &AuthError{Kind: KindLockout, Reason: entity.ReasonTooManyFailedAttempts, LockedUntil: &until})
		}
	}

	if !u.IsActive {
		return nil, s.reject(at, entity.AttemptFailed, &AuthError{Kind: KindAuthentication, Reason: entity.ReasonAccountInactive})
	}
	if cred == nil {
		return nil, s.reject(at, entity.AttemptFailed, &AuthError{Kind: KindInvariant, Reason: entity.ReasonCredentialMissing, Err: errors.New("user has no credential record")})
	}

	ok, err := s.hasher.Verify(ctx, password, cred.PasswordSalt, cred.PasswordHash)
	if err != nil {
		return nil, s.reject(at, entity.AttemptFailed, cryptoErr(entity.ReasonInternalError, err))
	}
	if !ok {
		n, err := s.creds.IncrementFailedAttempts(ctx, u.ID, now, cutoff)
		if err != nil {
			return nil, s.reject(at, entity.AttemptFailed, storageErr(entity.ReasonInternalError, err))
		}
		log.WithField("failed_attempts", n).Debug("password mismatch")
		return nil, s.reject(at, entity.AttemptFailed, &AuthError{Kind: KindAuthentication, Reason: entity.ReasonInvalidPassword})
	}

	if err := s.creds.ResetFailedAttempts(ctx, u.ID); err != nil {
		return nil, s.reject(at, entity.AttemptFailed, storageErr(entity.ReasonInternalError, err))
	}
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, s.reject(at, entity.AttemptFailed, storageErr(entity.ReasonInternalError, err))
	}
	u.LastLoginAt = &now

	tok, err := s.tokens.Issue(helpers.Identity{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
	})
	if err != nil {
		return nil, s.reject(at, entity.AttemptFailed, cryptoErr(entity.ReasonInternalError, err))
	}

	at.Result = entity.AttemptSuccess
	return &LoginResult{Token: tok.Value, ExpiresAt: tok.ExpiresAt, User: NewUserView(u)}, nil
}

// failureCutoff is the instant before which recorded failures no longer
// count: the start of the window, or the end of an already served lockout.
func (s *AuthService) failureCutoff(c *entity.Credential, now time.Time) time.Time {
	var cutoff time.Time
	if s.policy.FailedAttemptWindow > 0 {
		cutoff = now.Add(-s.policy.FailedAttemptWindow)
	}
	if c.AccountLockedUntil != nil && !c.AccountLockedUntil.After(now) && c.AccountLockedUntil.After(cutoff) {
		cutoff = *c.AccountLockedUntil
	}
	return cutoff
}

func (s *AuthService) reject(at *entity.LoginAttempt, result entity.AttemptResult, err *AuthError) error {
	at.Result = result
	at.FailureReason = err.Reason
	at.LockedUntil = err.LockedUntil
	return err
}

func (s *AuthService) logOutcome(log *logrus.Entry, at *entity.LoginAttempt, err error) {
	if err == nil {
		log.Info("login succeeded")
		return
	}
	entry := log.WithFields(logrus.Fields{"result": at.Result, "reason": at.FailureReason})
	switch KindOf(err) {
	case KindInvariant, KindCrypto, KindStorage:
		entry.WithError(err).Error("login failed")
	case KindLockout:
		entry.Warn("login blocked")
	default:
		entry.Info("login rejected")
	}
}

// watchRecentFailures flags emails, known or not, that keep failing inside
// the window.
func (s *AuthService) watchRecentFailures(ctx context.Context, log *logrus.Entry, email string) {
	if s.policy.FailedAttemptWindow <= 0 {
		return
	}
	n, err := s.ledger.RecentFailed(ctx, email, s.now().Add(-s.policy.FailedAttemptWindow))
	if err != nil {
		log.WithError(err).Debug("count recent failures")
		return
	}
	if n >= s.policy.MaxFailedAttempts {
		log.WithField("recent_failures", n).Warn("repeated failed logins for email")
	}
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a user and its credential. No token is issued.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*UserView, error) {
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, &AuthError{Kind: KindValidation, Reason: ReasonInvalidInput}
	}
	log := s.logger.WithFields(logrus.Fields{"email": email, "username": username})

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		log.WithError(err).Error("check email uniqueness")
		return nil, storageErr(entity.ReasonInternalError, err)
	}
	if exists {
		return nil, &AuthError{Kind: KindConflict, Reason: ReasonEmailExists}
	}
	exists, err = s.users.UsernameExists(ctx, username)
	if err != nil {
		log.WithError(err).Error("check username uniqueness")
		return nil, storageErr(entity.ReasonInternalError, err)
	}
	if exists {
		return nil, &AuthError{Kind: KindConflict, Reason: ReasonUsernameExists}
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		log.WithError(err).Error("generate salt")
		return nil, cryptoErr(entity.ReasonInternalError, err)
	}
	digest, err := s.hasher.Hash(ctx, in.Password, salt)
	if err != nil {
		log.WithError(err).Error("hash password")
		return nil, cryptoErr(entity.ReasonInternalError, err)
	}

	now := s.now()
	u := &entity.User{
		Username:  username,
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c := &entity.Credential{
		PasswordHash:      digest,
		PasswordSalt:      salt,
		HashAlgorithm:     s.hasher.Scheme(),
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	// both rows or neither; a lost race on the unique index lands here too
	if err := s.users.CreateWithCredential(ctx, u, c); err != nil {
		log.WithError(err).Error("create user")
		return nil, storageErr(entity.ReasonInternalError, err)
	}

	log.WithField("user_id", u.ID).Info("user registered")
	return NewUserView(u), nil
}

// Profile returns the current projection of a user.
func (s *AuthService) Profile(ctx context.Context, userID string) (*UserView, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &AuthError{Kind: KindAuthentication, Reason: entity.ReasonUserNotFound}
	}
	if err != nil {
		return nil, storageErr(entity.ReasonInternalError, err)
	}
	return NewUserView(u), nil
}

type ProfileInput struct {
	FirstName string
	LastName  string
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*UserView, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, &AuthError{Kind: KindAuthentication, Reason: entity.ReasonUserNotFound}
	}
	if err != nil {
		return nil, storageErr(entity.ReasonInternalError, err)
	}
	u.FirstName = strings.TrimSpace(in.FirstName)
	u.LastName = strings.TrimSpace(in.LastName)
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("update profile")
		return nil, storageErr(entity.ReasonInternalError, err)
	}
	return NewUserView(u), nil
}

// LoginHistory is a user's audit trail plus the failures still inside the window.
type LoginHistory struct {
	Attempts       []entity.LoginAttempt
	RecentFailures int
}

func (s *AuthService) LoginHistory(ctx context.Context, userID string, limit int) (*LoginHistory, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	attempts, err := s.ledger.History(ctx, userID, limit)
	if err != nil {
		return nil, storageErr(entity.ReasonInternalError, err)
	}
	h := &LoginHistory{Attempts: attempts}
	if s.policy.FailedAttemptWindow > 0 {
		n, err := s.ledger.RecentFailedByUser(ctx, userID, s.now().Add(-s.policy.FailedAttemptWindow))
		if err != nil {
			return nil, storageErr(entity.ReasonInternalError, err)
		}
		h.RecentFailures = n
	}
	return h, nil
}
