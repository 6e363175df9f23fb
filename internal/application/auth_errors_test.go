package application

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
)

func TestPublicMessage(t *testing.T) {
	until := time.Date(2025, 2, 3, 4, 5, 6, 0, time.FixedZone("X", 3600))
	cases := []struct {
		name string
		op   Op
		err  error
		want string
	}{
		{"validation", OpLogin, &AuthError{Kind: KindValidation}, MsgInvalidRequest},
		{"unknown user", OpLogin, &AuthError{Kind: KindAuthentication, Reason: entity.ReasonUserNotFound}, MsgInvalidCredentials},
		{"inactive", OpLogin, &AuthError{Kind: KindAuthentication, Reason: entity.ReasonAccountInactive}, MsgAccountInactive},
		{"locked", OpLogin, &AuthError{Kind: KindLockout, Reason: entity.ReasonAccountLocked, LockedUntil: &until}, "Account is locked until 2025-02-03 03:05:06 UTC."},
		{"just locked", OpLogin, &AuthError{Kind: KindLockout, Reason: entity.ReasonTooManyFailedAttempts, LockedUntil: &until}, MsgTooManyAttempts},
		{"invariant", OpLogin, &AuthError{Kind: KindInvariant}, MsgAuthFailed},
		{"storage login", OpLogin, &AuthError{Kind: KindStorage}, MsgLoginError},
		{"crypto register", OpRegister, &AuthError{Kind: KindCrypto}, MsgRegisterError},
		{"conflict email", OpRegister, &AuthError{Kind: KindConflict, Reason: ReasonEmailExists}, MsgEmailExists},
		{"conflict username", OpRegister, &AuthError{Kind: KindConflict, Reason: ReasonUsernameExists}, MsgUsernameExists},
		{"plain error", OpRegister, errors.New("x"), MsgRegisterError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PublicMessage(tc.op, tc.err))
		})
	}
}

func TestAuthErrorUnwrap(t *testing.T) {
	err := storageErr(entity.ReasonInternalError, errBoom)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Contains(t, err.Error(), "storage")
	assert.Equal(t, Kind(0), KindOf(errBoom))
}
