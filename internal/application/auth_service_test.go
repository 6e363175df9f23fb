package application

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
)

func TestRegisterThenLogin_CanonicalEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.Register(ctx, RegisterInput{Username: "alice01", Email: "A@Ex.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)
	assert.Equal(t, "a@ex.com", v.Email)
	assert.True(t, v.IsActive)
	assert.False(t, v.IsEmailVerified)

	c := f.credential(t, v.ID)
	assert.Equal(t, "Argon2id", c.HashAlgorithm)
	assert.NotEqual(t, "Sup3rSecret!", c.PasswordHash)

	res, err := f.login("a@ex.com", "Sup3rSecret!")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, f.clock.Now().Add(60*time.Minute), res.ExpiresAt)
	assert.Equal(t, "a@ex.com", res.User.Email)
	require.NotNil(t, res.User.LastLoginAt)
	assert.Equal(t, f.clock.Now(), *res.User.LastLoginAt)

	claims, ok := f.tokens.Validate(res.Token)
	require.True(t, ok)
	assert.Equal(t, v.ID, claims.UserID)
	assert.Equal(t, "alice01", claims.Username)

	at := f.lastAttempt(t)
	assert.Equal(t, entity.AttemptSuccess, at.Result)
	assert.Empty(t, at.FailureReason)
	assert.Equal(t, "203.0.113.7", at.IPAddress)
	assert.Equal(t, "test-agent", at.UserAgent)
}

func TestLogin_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t, "bob", "bob@ex.com", "correct-password")

	_, errUnknown := f.login("nobody@ex.com", "whatever")
	requireKind(t, errUnknown, KindAuthentication, entity.ReasonUserNotFound)
	unknown := f.lastAttempt(t)
	assert.Nil(t, unknown.UserID)
	assert.Equal(t, entity.AttemptFailed, unknown.Result)
	assert.Equal(t, "nobody@ex.com", unknown.Email)

	_, errWrong := f.login("bob@ex.com", "wrong-password")
	requireKind(t, errWrong, KindAuthentication, entity.ReasonInvalidPassword)

	assert.Equal(t, PublicMessage(OpLogin, errWrong), PublicMessage(OpLogin, errUnknown))
	assert.Equal(t, MsgInvalidCredentials, PublicMessage(OpLogin, errUnknown))
	assert.Equal(t, 2, f.hasher.verifies, "unknown email still runs a verification")
}

func TestLogin_LockoutAfterMaxFailures(t *testing.T) {
	f := newFixture(t)
	v := f.register(t, "alice01", "A@Ex.com", "Sup3rSecret!")

	for i := 1; i <= f.policy.MaxFailedAttempts; i++ {
		_, err := f.login("a@ex.com", "wrong")
		requireKind(t, err, KindAuthentication, entity.ReasonInvalidPassword)
		assert.Equal(t, i, f.credential(t, v.ID).FailedLoginAttempts)
		f.clock.Advance(time.Second)
	}

	_, err := f.login("a@ex.com", "Sup3rSecret!")
	ae := requireKind(t, err, KindLockout, entity.ReasonTooManyFailedAttempts)
	require.NotNil(t, ae.LockedUntil)
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), *ae.LockedUntil)
	assert.Equal(t, MsgTooManyAttempts, PublicMessage(OpLogin, err))
	assert.Equal(t, entity.AttemptBlocked, f.lastAttempt(t).Result)

	c := f.credential(t, v.ID)
	require.NotNil(t, c.AccountLockedUntil)
	assert.Equal(t, *ae.LockedUntil, *c.AccountLockedUntil)

	f.clock.Advance(time.Minute)
	_, err = f.login("a@ex.com", "Sup3rSecret!")
	ae = requireKind(t, err, KindLockout, entity.ReasonAccountLocked)
	assert.Equal(t, "Account is locked until "+c.AccountLockedUntil.UTC().Format("2006-01-02 15:04:05")+" UTC.", PublicMessage(OpLogin, err))
	assert.Equal(t, entity.ReasonAccountLocked, f.lastAttempt(t).FailureReason)
}

func TestLogin_LockedAccountIgnoresPassword(t *testing.T) {
	f := newFixture(t)
	v := f.register(t, "dave", "dave@ex.com", "right")
	require.NoError(t, f.creds.LockAccount(context.Background(), v.ID, f.clock.Now().Add(time.Hour)))

	for _, pw := range []string{"right", "wrong"} {
		_, err := f.login("dave@ex.com", pw)
		requireKind(t, err, KindLockout, entity.ReasonAccountLocked)
	}
	assert.Zero(t, f.credential(t, v.ID).FailedLoginAttempts, "blocked calls do not count as failures")
	assert.Zero(t, f.hasher.verifies)
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	v := f.register(t, "erin", "erin@ex.com", "pw-ok")

	for i := 0; i < f.policy.MaxFailedAttempts-1; i++ {
		_, _ = f.login("erin@ex.com", "bad")
	}
	_, err := f.login("erin@ex.com", "pw-ok")
	require.NoError(t, err)
	c := f.credential(t, v.ID)
	assert.Zero(t, c.FailedLoginAttempts)
	assert.Nil(t, c.AccountLockedUntil)

	_, _ = f.login("erin@ex.com", "bad")
	assert.Equal(t, 1, f.credential(t, v.ID).FailedLoginAttempts)
}

func TestLogin_FailuresDecayOutsideWindow(t *testing.T) {
	f := newFixture(t)
	v := f.register(t, "frank", "frank@ex.com", "pw-ok")

	for i := 0; i < f.policy.MaxFailedAttempts; i++ {
		_, _ = f.login("frank@ex.com", "bad")
	}
	f.clock.Advance(f.policy.FailedAttemptWindow + time.Second)

	// counter is stale, so the correct password succeeds instead of locking
	_, err := f.login("frank@ex.com", "pw-ok")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _ = f.login("frank@ex.com", "bad")
	}
	f.clock.Advance(f.policy.FailedAttemptWindow + time.Second)
	_, _ = f.login("frank@ex.com", "bad")
	assert.Equal(t, 1, f.credential(t, v.ID).FailedLoginAttempts)
}

func TestLogin_ServedLockoutForgivesFailures(t *testing.T) {
	f := newFixture(t)
	f.policy.FailedAttemptWindow = 0
	f.svc.policy.FailedAttemptWindow = 0
	v := f.register(t, "gina", "gina@ex.com", "pw-ok")

	for i := 0; i < f.policy.MaxFailedAttempts; i++ {
		_, _ = f.login("gina@ex.com", "bad")
	}
	_, err := f.login("gina@ex.com", "bad")
	requireKind(t, err, KindLockout, entity.ReasonTooManyFailedAttempts)

	f.clock.Advance(f.policy.LockoutDuration + time.Second)

	_, err = f.login("gina@ex.com", "bad")
	requireKind(t, err, KindAuthentication, entity.ReasonInvalidPassword)
	assert.Equal(t, 1, f.credential(t, v.ID).FailedLoginAttempts)

	_, err = f.login("gina@ex.com", "pw-ok")
	require.NoError(t, err)
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	v := f.register(t, "henry", "henry@ex.com", "pw-ok")
	u, err := f.users.GetByID(context.Background(), v.ID)
	require.NoError(t, err)
	u.IsActive = false
	require.NoError(t, f.users.Update(context.Background(), u))

	_, err = f.login("henry@ex.com", "pw-ok")
	requireKind(t, err, KindAuthentication, entity.ReasonAccountInactive)
	assert.Equal(t, MsgAccountInactive, PublicMessage(OpLogin, err))
	assert.Equal(t, entity.ReasonAccountInactive, f.lastAttempt(t).FailureReason)
}

func TestLogin_MissingCredentialIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	u := &entity.User{Username: "ivy", Email: "ivy@ex.com", IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), u))

	_, err := f.login("ivy@ex.com", "anything")
	requireKind(t, err, KindInvariant, entity.ReasonCredentialMissing)
	assert.Equal(t, MsgAuthFailed, PublicMessage(OpLogin, err))

	at := f.lastAttempt(t)
	require.NotNil(t, at.UserID)
	assert.Equal(t, u.ID, *at.UserID)
	assert.Equal(t, entity.AttemptFailed, at.Result)
}

func TestLogin_ExactlyOneAttemptPerCall(t *testing.T) {
	f := newFixture(t)
	f.register(t, "jack", "jack@ex.com", "pw-ok")

	calls := []struct{ email, pw string }{
		{"jack@ex.com", "pw-ok"},
		{"nobody@ex.com", "x"},
		{"jack@ex.com", "bad"},
		{"jack@ex.com", "bad"},
		{"jack@ex.com", "bad"},
		{"jack@ex.com", "bad"},
		{"jack@ex.com", "bad"},
		{"jack@ex.com", "pw-ok"},
		{"jack@ex.com", "pw-ok"},
	}
	for i, c := range calls {
		_, _ = f.login(c.email, c.pw)
		assert.Len(t, f.attempts.All(), i+1)
	}
}

func TestLogin_EmptyInputWritesNoAttempt(t *testing.T) {
	f := newFixture(t)
	_, err := f.login("  ", "pw")
	requireKind(t, err, KindValidation, "")
	_, err = f.login("a@ex.com", "")
	requireKind(t, err, KindValidation, "")
	assert.Empty(t, f.attempts.All())
}

func TestLogin_LedgerFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t)
	f.register(t, "kate", "kate@ex.com", "pw-ok")
	f.attempts.fail = true

	res, err := f.login("kate@ex.com", "pw-ok")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	_, err = f.login("kate@ex.com", "bad")
	requireKind(t, err, KindAuthentication, entity.ReasonInvalidPassword)
}

func TestLogin_HasherFailureIsCrypto(t *testing.T) {
	f := newFixture(t)
	f.register(t, "liam", "liam@ex.com", "pw-ok")
	f.hasher.verifyErr = errBoom

	_, err := f.login("liam@ex.com", "pw-ok")
	requireKind(t, err, KindCrypto, entity.ReasonInternalError)
	assert.Equal(t, MsgLoginError, PublicMessage(OpLogin, err))
	assert.Equal(t, entity.ReasonInternalError, f.lastAttempt(t).FailureReason)

	f.hasher.verifyErr = context.DeadlineExceeded
	_, err = f.login("liam@ex.com", "pw-ok")
	requireKind(t, err, KindStorage, entity.ReasonInternalError)
}

func TestLogin_UsesAccountGate(t *testing.T) {
	gate := &fakeGate{}
	f := newFixture(t, WithAccountGate(gate))
	f.register(t, "mia", "mia@ex.com", "pw-ok")

	_, err := f.login("MIA@ex.com", "pw-ok")
	require.NoError(t, err)
	assert.Equal(t, []string{"login:mia@ex.com"}, gate.keys)
	assert.Equal(t, 1, gate.released)

	gate.err = errBoom
	_, err = f.login("mia@ex.com", "pw-ok")
	requireKind(t, err, KindStorage, entity.ReasonInternalError)
	assert.Equal(t, entity.ReasonInternalError, f.lastAttempt(t).FailureReason)
}

func TestLogin_ReleasesGateOnPanic(t *testing.T) {
	gate := &fakeGate{}
	f := newFixture(t, WithAccountGate(gate))
	f.register(t, "nia", "nia@ex.com", "pw-ok")

	f.hasher.panics = true
	assert.Panics(t, func() { _, _ = f.login("nia@ex.com", "pw-ok") })
	assert.Equal(t, 1, gate.released)

	f.hasher.panics = false
	_, err := f.login("nia@ex.com", "pw-ok")
	require.NoError(t, err)
	assert.Equal(t, 2, gate.released)
}

func TestLogin_OversizedOrMalformedAgentStillRecorded(t *testing.T) {
	f := newFixture(t)
	f.register(t, "owen", "owen@ex.com", "pw-ok")

	agents := []string{strings.Repeat("a", 600), "bad\xff\xfeagent"}
	for i, agent := range agents {
		_, err := f.loginAs("owen@ex.com", "pw-ok", agent)
		require.NoError(t, err)

		all := f.attempts.All()
		require.Len(t, all, i+1, "one ledger entry per call")
		got := all[i].UserAgent
		assert.LessOrEqual(t, len(got), entity.MaxAttemptUserAgentLen)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, entity.AttemptSuccess, all[i].Result)
	}
	assert.Equal(t, strings.Repeat("a", 500), f.attempts.All()[0].UserAgent)
}

func TestLogin_BlockedAttemptCarriesLockedUntil(t *testing.T) {
	f := newFixture(t)
	f.register(t, "pia", "pia@ex.com", "pw-ok")
	for i := 0; i < f.policy.MaxFailedAttempts; i++ {
		_, _ = f.login("pia@ex.com", "wrong")
	}

	_, err := f.login("pia@ex.com", "pw-ok")
	ae := requireKind(t, err, KindLockout, "")
	at := f.lastAttempt(t)
	require.NotNil(t, at.LockedUntil)
	assert.Equal(t, *ae.LockedUntil, *at.LockedUntil)
}

func TestRegister_RejectsCaseInsensitiveDuplicates(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Nora", "nora@ex.com", "pw-ok-123")

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "other", Email: "NORA@EX.COM", Password: "pw"})
	requireKind(t, err, KindConflict, ReasonEmailExists)
	assert.Equal(t, MsgEmailExists, PublicMessage(OpRegister, err))

	_, err = f.svc.Register(context.Background(), RegisterInput{Username: "nora", Email: "new@ex.com", Password: "pw"})
	requireKind(t, err, KindConflict, ReasonUsernameExists)
	assert.Equal(t, MsgUsernameExists, PublicMessage(OpRegister, err))
}

func TestRegister_CryptoFailureLeavesNoUser(t *testing.T) {
	f := newFixture(t)
	f.hasher.saltErr = errBoom

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "olga", Email: "olga@ex.com", Password: "pw"})
	requireKind(t, err, KindCrypto, "")
	assert.Equal(t, MsgRegisterError, PublicMessage(OpRegister, err))

	exists, _ := f.users.EmailExists(context.Background(), "olga@ex.com")
	assert.False(t, exists)

	f.hasher.saltErr = nil
	f.hasher.hashErr = errBoom
	_, err = f.svc.Register(context.Background(), RegisterInput{Username: "olga", Email: "olga@ex.com", Password: "pw"})
	requireKind(t, err, KindCrypto, "")
	exists, _ = f.users.EmailExists(context.Background(), "olga@ex.com")
	assert.False(t, exists)
}

func TestRegister_CredentialFailureLeavesNoUser(t *testing.T) {
	f := newFixture(t)
	f.creds.fail = true

	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "quin", Email: "quin@ex.com", Password: "pw"})
	requireKind(t, err, KindStorage, "")
	assert.Equal(t, MsgRegisterError, PublicMessage(OpRegister, err))

	exists, err := f.users.EmailExists(context.Background(), "quin@ex.com")
	require.NoError(t, err)
	assert.False(t, exists)
	taken, err := f.users.UsernameExists(context.Background(), "quin")
	require.NoError(t, err)
	assert.False(t, taken)

	f.creds.fail = false
	v := f.register(t, "quin", "quin@ex.com", "pw")
	assert.Equal(t, v.ID, f.credential(t, v.ID).UserID)
}

func TestProfileAndHistory(t *testing.T) {
	f := newFixture(t)
	v := f.register(t, "paul", "paul@ex.com", "pw-ok")
	ctx := context.Background()

	_, _ = f.login("paul@ex.com", "bad")
	f.clock.Advance(time.Second)
	_, err := f.login("paul@ex.com", "pw-ok")
	require.NoError(t, err)

	p, err := f.svc.UpdateProfile(ctx, v.ID, ProfileInput{FirstName: "  Paul ", LastName: "Smith"})
	require.NoError(t, err)
	assert.Equal(t, "Paul", p.FirstName)

	p, err = f.svc.Profile(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Smith", p.LastName)
	assert.NotNil(t, p.LastLoginAt)

	h, err := f.svc.LoginHistory(ctx, v.ID, 0)
	require.NoError(t, err)
	require.Len(t, h.Attempts, 2)
	assert.Equal(t, entity.AttemptSuccess, h.Attempts[0].Result)
	assert.Equal(t, 1, h.RecentFailures)

	_, err = f.svc.Profile(ctx, "missing")
	requireKind(t, err, KindAuthentication, entity.ReasonUserNotFound)
}
