package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accounts/internal/identity"
	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/notify"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"go.uber.org/zap"
)

var (
	// ErrEmailExists is returned when signing up with an email already in use.
	ErrEmailExists = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountNotFound is returned when the caller's account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidAccount wraps a *types.ValidationError.
	ErrInvalidAccount = errors.New("invalid account")
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	UpdateProfile(ctx context.Context, id string, update types.ProfileUpdate) (types.Account, error)
}

// Credentials hashes passwords and issues session tokens.
type Credentials interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	IssueToken(accountID string) (string, error)
}

// SignupInput carries the fields of a manual signup.
type SignupInput struct {
	FullName string
	Email    string
	Phone    string
	Password string
}

// Session is a signed token together with the account it was issued for.
type Session struct {
	Token   string
	Account types.Account
	// Created is set when a federated login created the account.
	Created bool
}

// AccountService implements signup, login, federated login and profile use-cases.
type AccountService struct {
	repo     AccountRepository
	creds    Credentials
	verifier identity.Verifier
	notifier notify.Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewAccountService(
	repo AccountRepository,
	creds Credentials,
	verifier identity.Verifier,
	notifier notify.Notifier,
	logger *zap.Logger,
	m *metrics.Metrics,
) *AccountService {
	return &AccountService{
		repo:     repo,
		creds:    creds,
		verifier: verifier,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
	}
}

// Signup creates a password account and queues a welcome email.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (types.Account, error) {
	account := types.Account{
		FullName: strings.TrimSpace(in.FullName),
		Email:    in.Email,
		Phone:    strings.TrimSpace(in.Phone),
		Provider: types.ProviderPassword,
		// Checked for presence only; replaced by the digest below.
		PasswordHash: in.Password,
	}.WithDefaults()

	if _, err := s.repo.GetByEmail(ctx, account.Email); err == nil {
		return types.Account{}, ErrEmailExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Account{}, fmt.Errorf("lookup account by email: %w", err)
	}

	if err := types.ValidateNew(account); err != nil {
		return types.Account{}, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}

	hashed, err := s.creds.Hash(in.Password)
	if err != nil {
		return types.Account{}, fmt.Errorf("hash password: %w", err)
	}
	account.PasswordHash = hashed

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Account{}, ErrEmailExists
		}
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.metrics.AccountCreated(string(types.ProviderPassword))
	s.logger.Info("account created",
		zap.String("account_id", created.ID),
		zap.String("provider", string(created.Provider)))
	s.sendWelcome(ctx, created)
	return created, nil
}

// Login verifies a password and issues a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	account, err := s.repo.GetByEmail(ctx, types.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Login(string(types.ProviderPassword), "failure")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup account by email: %w", err)
	}

	if !s.creds.Verify(password, account.PasswordHash) {
		s.metrics.Login(string(types.ProviderPassword), "failure")
		return Session{}, ErrInvalidCredentials
	}

	token, err := s.creds.IssueToken(account.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.Login(string(types.ProviderPassword), "success")
	return Session{Token: token, Account: account}, nil
}

// FederatedLogin verifies a provider token, resolves or creates the local
// account, and issues a session token. Verification failures wrap
// identity.ErrInvalidAssertion.
func (s *AccountService) FederatedLogin(ctx context.Context, rawToken string) (Session, error) {
	assertion, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		s.metrics.Login(string(types.ProviderGoogle), "failure")
		return Session{}, err
	}

	account, created, err := s.resolveFederated(ctx, assertion)
	if err != nil {
		return Session{}, err
	}

	token, err := s.creds.IssueToken(account.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.Login(string(types.ProviderGoogle), "success")
	if created {
		s.sendWelcome(ctx, account)
	}
	return Session{Token: token, Account: account, Created: created}, nil
}

func (s *AccountService) resolveFederated(ctx context.Context, assertion identity.Assertion) (types.Account, bool, error) {
	email := types.NormalizeEmail(assertion.Email)
	account, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Account{}, false, fmt.Errorf("lookup account by email: %w", err)
	}

	account = types.Account{
		FullName:     displayName(assertion.DisplayName, email),
		Email:        email,
		Phone:        providerPhone(assertion.Phone),
		Provider:     types.ProviderGoogle,
		PasswordHash: assertion.Subject,
	}.WithDefaults()
	if err := types.ValidateNew(account); err != nil {
		return types.Account{}, false, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}

	created, err := s.repo.Create(ctx, account)
	if errors.Is(err, store.ErrConflict) {
		// A concurrent login created it first.
		existing, lookupErr := s.repo.GetByEmail(ctx, email)
		if lookupErr != nil {
			return types.Account{}, false, fmt.Errorf("lookup account after conflict: %w", lookupErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return types.Account{}, false, fmt.Errorf("create account: %w", err)
	}

	s.metrics.AccountCreated(string(types.ProviderGoogle))
	s.logger.Info("account created",
		zap.String("account_id", created.ID),
		zap.String("provider", string(created.Provider)))
	return created, true, nil
}

// GetProfile returns the caller's account.
func (s *AccountService) GetProfile(ctx context.Context, accountID string) (types.Account, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountNotFound
		}
		return types.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// UpdateProfile overwrites every mutable profile field with update. Fields
// left zero in update are cleared.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, update types.ProfileUpdate) (types.Account, error) {
	if err := types.ValidateUpdate(update.Apply(types.Account{})); err != nil {
		return types.Account{}, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}

	account, err := s.repo.UpdateProfile(ctx, accountID, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountNotFound
		}
		return types.Account{}, fmt.Errorf("update account: %w", err)
	}
	return account, nil
}

func (s *AccountService) sendWelcome(ctx context.Context, account types.Account) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.SendWelcome(ctx, notify.WelcomeEmail{
		Email:    account.Email,
		FullName: account.FullName,
	})
	if err != nil {
		s.logger.Warn("welcome email not dispatched",
			zap.String("account_id", account.ID),
			zap.Error(err))
	}
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// providerPhone maps a provider-supplied number onto the local mobile
// format, or the placeholder when it does not fit.
func providerPhone(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	if types.ValidPhone(phone) {
		return phone
	}
	if rest, ok := strings.CutPrefix(phone, "+91"); ok && types.ValidPhone(rest) {
		return rest
	}
	return types.PhonePlaceholder
}
