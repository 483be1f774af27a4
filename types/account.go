package types

import (
	"strings"
	"time"
)

// Role is the authorization level of an account.
type Role string

const (
	// RoleUser is the only role accounts can currently hold.
	RoleUser Role = "user"
)

// Gender is the self-declared gender stored on a profile.
type Gender string

const (
	GenderMale           Gender = "Male"
	GenderFemale         Gender = "Female"
	GenderOther          Gender = "Other"
	GenderPreferNotToSay Gender = "Prefer not to say"
)

// AuthProvider records which login path created an account.
type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGoogle   AuthProvider = "google"
)

// PhonePlaceholder is stored for federated accounts whose provider
// did not supply a usable mobile number.
const PhonePlaceholder = "N/A"

// Account represents a user's persisted identity record.
type Account struct {
	// ID is the opaque identifier assigned by the store on creation.
	ID string `json:"id" bson:"-"`

	// FullName is the user's display or full name.
	FullName string `json:"fullName" bson:"fullName"`

	// Email is unique across accounts and always stored lowercased.
	Email string `json:"email" bson:"email"`

	// Phone is a 10-digit mobile number starting with 6-9, or
	// PhonePlaceholder for federated accounts.
	Phone string `json:"phone" bson:"phone"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" bson:"role"`

	// PasswordHash stores the bcrypt digest of the user's password.
	// For federated accounts it holds the provider subject identifier.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"password"`

	// Provider records how the account was created.
	Provider AuthProvider `json:"-" bson:"provider"`

	// Address is a free-text postal address.
	Address string `json:"address" bson:"address"`

	// Gender is one of the Gender constants, or empty after an update
	// that omitted it.
	Gender Gender `json:"gender" bson:"gender"`

	// DateOfBirth is optional and may be cleared by a profile update.
	DateOfBirth *time.Time `json:"dob,omitempty" bson:"dob,omitempty"`

	// PasswordResetCode and PasswordResetExpires are reserved for a
	// password reset flow.
	PasswordResetCode    string     `json:"-" bson:"resetOTP,omitempty"`
	PasswordResetExpires *time.Time `json:"-" bson:"resetOTPExpires,omitempty"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	// UpdatedAt is the timestamp of the most recent write.
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// PublicAccount is the subset of an Account that may be returned to clients.
type PublicAccount struct {
	ID          string     `json:"id"`
	FullName    string     `json:"fullName"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Role        Role       `json:"role"`
	Address     string     `json:"address"`
	Gender      Gender     `json:"gender"`
	DateOfBirth *time.Time `json:"dob"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Public projects the account onto the fields safe to return to clients.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:          a.ID,
		FullName:    a.FullName,
		Email:       a.Email,
		Phone:       a.Phone,
		Role:        a.Role,
		Address:     a.Address,
		Gender:      a.Gender,
		DateOfBirth: a.DateOfBirth,
		CreatedAt:   a.CreatedAt,
	}
}

// ProfileUpdate carries the mutable profile fields. Every field is
// written, so a zero value clears the stored one.
type ProfileUpdate struct {
	FullName    string
	Phone       string
	Address     string
	Gender      Gender
	DateOfBirth *time.Time
}

// Apply overwrites the mutable fields of a with u.
func (u ProfileUpdate) Apply(a Account) Account {
	a.FullName = u.FullName
	a.Phone = u.Phone
	a.Address = u.Address
	a.Gender = u.Gender
	a.DateOfBirth = u.DateOfBirth
	return a
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// WithDefaults fills the fields a newly created account defaults to.
func (a Account) WithDefaults() Account {
	a.Email = NormalizeEmail(a.Email)
	if a.Role == "" {
		a.Role = RoleUser
	}
	if a.Gender == "" {
		a.Gender = GenderPreferNotToSay
	}
	if a.Provider == "" {
		a.Provider = ProviderPassword
	}
	return a
}
