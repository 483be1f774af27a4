package types

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

var validate = newValidator()

// FieldError describes a single rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned when an account fails its write-time checks.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "invalid account: " + strings.Join(parts, "; ")
}

type newAccountRules struct {
	FullName     string `json:"fullName" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,mobile"`
	Role         string `json:"role" validate:"required,role"`
	Gender       string `json:"gender" validate:"required,gender"`
	PasswordHash string `json:"password" validate:"required,maxbytes=72"`
}

type updateRules struct {
	Phone  string `json:"phone" validate:"omitempty,mobile"`
	Gender string `json:"gender" validate:"omitempty,gender"`
}

// ValidateNew checks an account before it is inserted. Federated accounts
// may carry PhonePlaceholder instead of a mobile number.
func ValidateNew(a Account) error {
	rules := newAccountRules{
		FullName:     strings.TrimSpace(a.FullName),
		Email:        a.Email,
		Phone:        a.Phone,
		Role:         string(a.Role),
		Gender:       string(a.Gender),
		PasswordHash: a.PasswordHash,
	}
	if a.Provider != ProviderPassword && a.Phone == PhonePlaceholder {
		// Any valid number stands in so the remaining rules still run.
		rules.Phone = "9000000000"
	}
	return translate(validate.Struct(rules))
}

// ValidateUpdate checks an account before a profile update is written.
// Blank fields are accepted because updates overwrite every mutable field.
func ValidateUpdate(a Account) error {
	return translate(validate.Struct(updateRules{
		Phone:  a.Phone,
		Gender: string(a.Gender),
	}))
}

// ValidPhone reports whether phone is a 10-digit mobile number starting with 6-9.
func ValidPhone(phone string) bool {
	return mobilePattern.MatchString(phone)
}

// ValidGender reports whether g is one of the accepted genders.
func ValidGender(g Gender) bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay:
		return true
	}
	return false
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		return ValidGender(Gender(fl.Field().String()))
	})
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return Role(fl.Field().String()) == RoleUser
	})
	return v
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Reason: reason(fe)})
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "mobile":
		return "must be a 10-digit mobile number starting with 6-9"
	case "gender":
		return fmt.Sprintf("must be one of %q, %q, %q, %q", GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay)
	case "maxbytes":
		return fmt.Sprintf("must be at most %s bytes", fe.Param())
	case "role":
		return fmt.Sprintf("must be %q", RoleUser)
	default:
		return "is invalid"
	}
}
