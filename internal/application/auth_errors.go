package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oksasatya/coherency-auth/internal/domain/entity"
)

// Kind classifies why an authentication operation did not succeed.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindLockout
	KindInvariant
	KindCrypto
	KindStorage
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindLockout:
		return "lockout"
	case KindInvariant:
		return "invariant"
	case KindCrypto:
		return "crypto"
	case KindStorage:
		return "storage"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Conflict reasons returned by registration.
const (
	ReasonEmailExists    = "email_exists"
	ReasonUsernameExists = "username_exists"
	ReasonInvalidInput   = "invalid_input"
)

// AuthError is returned by every AuthService operation that fails. Reason is
// the ledger reason code for login and a conflict code for registration.
type AuthError struct {
	Kind        Kind
	Reason      string
	LockedUntil *time.Time
	Err         error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or zero when err is not an AuthError.
func KindOf(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

func storageErr(reason string, err error) *AuthError {
	return &AuthError{Kind: KindStorage, Reason: reason, Err: err}
}

// cryptoErr keeps caller timeouts out of the crypto bucket.
func cryptoErr(reason string, err error) *AuthError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return storageErr(reason, err)
	}
	return &AuthError{Kind: KindCrypto, Reason: reason, Err: err}
}

// Op names the user-facing operation a message is rendered for.
type Op int

const (
	OpLogin Op = iota + 1
	OpRegister
)

const (
	MsgLoginSuccess        = "Login successful."
	MsgRegisterSuccess     = "Registration successful. Please verify your email."
	MsgInvalidCredentials  = "Invalid email or password."
	MsgTooManyAttempts     = "Account temporarily locked due to too many failed attempts. Please try again later."
	MsgAccountInactive     = "Account is inactive. Please contact support."
	MsgAuthFailed          = "Authentication failed. Please contact support."
	MsgLoginError          = "An error occurred during login. Please try again."
	MsgEmailExists         = "Email already exists."
	MsgUsernameExists      = "Username already exists."
	MsgRegisterError       = "An error occurred during registration. Please try again."
	MsgInvalidRequest      = "Invalid request data."
	lockedUntilLayout      = "2006-01-02 15:04:05"
	lockedUntilMsgTemplate = "Account is locked until %s UTC."
)

// PublicMessage renders the low-information text shown to clients. Internal
// detail stays in the wrapped error.
func PublicMessage(op Op, err error) string {
	var ae *AuthError
	if !errors.As(err, &ae) {
		if op == OpRegister {
			return MsgRegisterError
		}
		return MsgLoginError
	}
	switch ae.Kind {
	case KindValidation:
		return MsgInvalidRequest
	case KindAuthentication:
		if ae.Reason == entity.ReasonAccountInactive {
			return MsgAccountInactive
		}
		return MsgInvalidCredentials
	case KindLockout:
		if ae.Reason == entity.ReasonAccountLocked && ae.LockedUntil != nil {
			return fmt.Sprintf(lockedUntilMsgTemplate, ae.LockedUntil.UTC().Format(lockedUntilLayout))
		}
		return MsgTooManyAttempts
	case KindInvariant:
		return MsgAuthFailed
	case KindConflict:
		if ae.Reason == ReasonUsernameExists {
			return MsgUsernameExists
		}
		return MsgEmailExists
	}
	if op == OpRegister {
		return MsgRegisterError
	}
	return MsgLoginError
}
