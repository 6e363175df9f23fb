package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	passwordvalidator "github.com/wagslane/go-password-validator"
)

// DefaultPasswordMinEntropyBits is used when Init receives a non-positive value.
const DefaultPasswordMinEntropyBits = 50

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	mu         sync.RWMutex
	minEntropy float64 = DefaultPasswordMinEntropyBits
)

// Init configures the global validator used by Gin's binding.
// - Uses JSON tag names in errors.
// - Registers `username` (3..50 of [A-Za-z0-9_]) and `pwdentropy`.
func Init(passwordMinEntropyBits float64) {
	mu.Lock()
	if passwordMinEntropyBits > 0 {
		minEntropy = passwordMinEntropyBits
	} else {
		minEntropy = DefaultPasswordMinEntropyBits
	}
	mu.Unlock()

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Register(v)
	}
}

// Register installs the tag name func, aliases and custom rules on v.
func Register(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("usernamechars", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("pwdentropy", func(fl validator.FieldLevel) bool {
		return PasswordStrength(fl.Field().String()) == nil
	})
	v.RegisterAlias("username", "min=3,max=50,usernamechars")
	v.RegisterAlias("pwd", "min=8,max=100")
}

// PasswordStrength rejects passwords below the configured entropy floor.
func PasswordStrength(password string) error {
	mu.RLock()
	bits := minEntropy
	mu.RUnlock()
	return passwordvalidator.Validate(password, bits)
}

// ToDetails converts validation/binding errors into a map[field]message suitable for API error.details.
func ToDetails(err error) map[string]string {
	if err == nil {
		return nil
	}

	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ute) {
		return map[string]string{"payload": "invalid json"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = formatFieldError(fe)
		}
		return out
	}

	return map[string]string{"payload": "invalid payload"}
}

func formatFieldError(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.ActualTag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		if isNumberKind(fe.Kind()) {
			return "must be at least " + param
		}
		return "must be at least " + param + " characters long"
	case "max":
		if isNumberKind(fe.Kind()) {
			return "must be at most " + param
		}
		return "must be at most " + param + " characters long"
	case "usernamechars":
		return "may contain only letters, digits and underscore"
	case "pwdentropy":
		return "is too weak; use a longer password with more character types"
	case "uuid":
		return "must be a valid UUID"
	default:
		if param != "" {
			return fmt.Sprintf("validation failed for '%s' with parameter '%s'", fe.ActualTag(), param)
		}
		return fmt.Sprintf("validation failed for '%s'", fe.ActualTag())
	}
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
