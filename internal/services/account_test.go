package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jjudge-oj/accounts/internal/credentials"
	"github.com/jjudge-oj/accounts/internal/identity"
	"github.com/jjudge-oj/accounts/internal/notify"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type memoryRepo struct {
	mu       sync.Mutex
	nextID   int
	byID     map[string]types.Account
	failNext error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{byID: map[string]types.Account{}}
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (r *memoryRepo) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Email == types.NormalizeEmail(email) {
			return a, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, a types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return types.Account{}, err
	}
	for _, existing := range r.byID {
		if existing.Email == a.Email {
			return types.Account{}, store.ErrConflict
		}
	}
	r.nextID++
	a.ID = fmt.Sprintf("acct-%d", r.nextID)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.byID[a.ID] = a
	return a, nil
}

func (r *memoryRepo) UpdateProfile(ctx context.Context, id string, u types.ProfileUpdate) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	a = u.Apply(a)
	a.UpdatedAt = time.Now()
	r.byID[id] = a
	return a, nil
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []notify.WelcomeEmail
	err   error
}

func (c *countingNotifier) SendWelcome(ctx context.Context, w notify.WelcomeEmail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, w)
	return c.err
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type stubVerifier struct {
	assertion identity.Assertion
	err       error
}

func (s stubVerifier) Verify(ctx context.Context, rawToken string) (identity.Assertion, error) {
	if s.err != nil {
		return identity.Assertion{}, s.err
	}
	return s.assertion, nil
}

type fixture struct {
	svc      *AccountService
	repo     *memoryRepo
	creds    *credentials.Service
	notifier *countingNotifier
}

func newFixture(t *testing.T, verifier identity.Verifier) fixture {
	t.Helper()
	creds, err := credentials.NewService("test-secret", credentials.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	repo := newMemoryRepo()
	notifier := &countingNotifier{}
	if verifier == nil {
		verifier = stubVerifier{err: identity.ErrInvalidAssertion}
	}
	return fixture{
		svc:      NewAccountService(repo, creds, verifier, notifier, zap.NewNop(), nil),
		repo:     repo,
		creds:    creds,
		notifier: notifier,
	}
}

func signupInput() SignupInput {
	return SignupInput{
		FullName: "Asha Rao",
		Email:    "Asha@Example.com",
		Phone:    "9876543210",
		Password: "s3cret-pass",
	}
}

func TestSignupHashesPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	account, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	stored, err := f.repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", stored.Email)
	assert.Equal(t, types.RoleUser, stored.Role)
	assert.Equal(t, types.GenderPreferNotToSay, stored.Gender)
	assert.NotEqual(t, "s3cret-pass", stored.PasswordHash)
	assert.True(t, f.creds.Verify("s3cret-pass", stored.PasswordHash))
	assert.Equal(t, 1, f.notifier.count())
}

func TestSignupDuplicateEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	again := signupInput()
	again.Email = "ASHA@example.COM"
	again.FullName = "Someone Else"
	again.Password = "different"
	_, err = f.svc.Signup(ctx, again)
	require.ErrorIs(t, err, ErrEmailExists)

	stored, err := f.repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, stored)
	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, f.notifier.count())
}

func TestSignupRacingInsertIsConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.failNext = store.ErrConflict

	_, err := f.svc.Signup(context.Background(), signupInput())
	assert.ErrorIs(t, err, ErrEmailExists)
	assert.Equal(t, 0, f.notifier.count())
}

func TestSignupRejectsInvalidPhone(t *testing.T) {
	f := newFixture(t, nil)
	for _, phone := range []string{"1234567890", "98765", "+919876543210", "N/A", ""} {
		in := signupInput()
		in.Phone = phone
		_, err := f.svc.Signup(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidAccount, "phone=%q", phone)

		var verr *types.ValidationError
		require.True(t, errors.As(err, &verr))
	}
	assert.Equal(t, 0, f.repo.count())
	assert.Equal(t, 0, f.notifier.count())
}

func TestSignupSurvivesNotifierFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.err = errors.New("mail down")

	account, err := f.svc.Signup(context.Background(), signupInput())
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, 1, f.repo.count())
}

func TestSignupStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.failNext = errors.New("disk full")

	_, err := f.svc.Signup(context.Background(), signupInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmailExists)
	assert.NotErrorIs(t, err, ErrInvalidAccount)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "asha@example.com", "nope")
	_, unknownEmail := f.svc.Login(ctx, "ghost@example.com", "s3cret-pass")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	account, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	session, err := f.svc.Login(ctx, "  ASHA@example.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, account.ID, session.Account.ID)

	subject, err := f.creds.ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, subject)
}

func TestFederatedLoginCreatesOnceAndWelcomesOnce(t *testing.T) {
	f := newFixture(t, stubVerifier{assertion: identity.Assertion{
		Subject:     "google-sub-42",
		Email:       "Ravi@Example.com",
		DisplayName: "Ravi Kumar",
	}})
	ctx := context.Background()

	first, err := f.svc.FederatedLogin(ctx, "token")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "ravi@example.com", first.Account.Email)
	assert.Equal(t, "Ravi Kumar", first.Account.FullName)
	assert.Equal(t, types.PhonePlaceholder, first.Account.Phone)
	assert.Equal(t, "google-sub-42", first.Account.PasswordHash)
	assert.Equal(t, types.ProviderGoogle, first.Account.Provider)
	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, f.notifier.count())

	second, err := f.svc.FederatedLogin(ctx, "token")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Account.ID, second.Account.ID)
	assert.Equal(t, 1, f.repo.count())
	assert.Equal(t, 1, f.notifier.count())

	subject, err := f.creds.ParseToken(second.Token)
	require.NoError(t, err)
	assert.Equal(t, first.Account.ID, subject)
}

func TestFederatedLoginLinksExistingPasswordAccount(t *testing.T) {
	f := newFixture(t, stubVerifier{assertion: identity.Assertion{
		Subject: "google-sub-1",
		Email:   "asha@example.com",
	}})
	ctx := context.Background()
	account, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	session, err := f.svc.FederatedLogin(ctx, "token")
	require.NoError(t, err)
	assert.False(t, session.Created)
	assert.Equal(t, account.ID, session.Account.ID)
	assert.Equal(t, 1, f.notifier.count())
}

func TestFederatedLoginInvalidAssertion(t *testing.T) {
	f := newFixture(t, stubVerifier{err: fmt.Errorf("%w: expired", identity.ErrInvalidAssertion)})

	_, err := f.svc.FederatedLogin(context.Background(), "token")
	assert.ErrorIs(t, err, identity.ErrInvalidAssertion)
	assert.Equal(t, 0, f.repo.count())
	assert.Equal(t, 0, f.notifier.count())
}

func TestFederatedLoginProviderPhone(t *testing.T) {
	cases := map[string]string{
		"+919876543210":   "9876543210",
		"+91 98765-43210": "9876543210",
		"7000000000":      "7000000000",
		"+14155550100":    types.PhonePlaceholder,
		"":                types.PhonePlaceholder,
	}
	for in, want := range cases {
		assert.Equal(t, want, providerPhone(in), "input=%q", in)
	}
}

func TestFederatedLoginDisplayNameFallback(t *testing.T) {
	f := newFixture(t, stubVerifier{assertion: identity.Assertion{
		Subject: "sub",
		Email:   "meera.n@example.com",
	}})
	session, err := f.svc.FederatedLogin(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "meera.n", session.Account.FullName)
}

func TestProfileDateOfBirthRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	account, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.UpdateProfile(ctx, account.ID, types.ProfileUpdate{
		FullName:    "Asha Rao",
		Phone:       "9876543210",
		Address:     "12 MG Road",
		Gender:      types.GenderFemale,
		DateOfBirth: &dob,
	})
	require.NoError(t, err)

	profile, err := f.svc.GetProfile(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.DateOfBirth)
	assert.True(t, dob.Equal(*profile.DateOfBirth))

	_, err = f.svc.UpdateProfile(ctx, account.ID, types.ProfileUpdate{
		FullName: "Asha Rao",
		Phone:    "9876543210",
		Address:  "12 MG Road",
		Gender:   types.GenderFemale,
	})
	require.NoError(t, err)

	profile, err = f.svc.GetProfile(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, profile.DateOfBirth)
}

func TestUpdateProfileOverwritesOmittedFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	account, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.UpdateProfile(ctx, account.ID, types.ProfileUpdate{
		FullName: "Asha Rao", Phone: "9876543210", Address: "12 MG Road",
		Gender: types.GenderFemale, DateOfBirth: &dob,
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdateProfile(ctx, account.ID, types.ProfileUpdate{FullName: "Asha R"})
	require.NoError(t, err)
	assert.Equal(t, "Asha R", updated.FullName)
	assert.Empty(t, updated.Phone)
	assert.Empty(t, updated.Address)
	assert.Empty(t, updated.Gender)
	assert.Nil(t, updated.DateOfBirth)
	assert.Equal(t, account.Email, updated.Email)
	assert.Equal(t, account.Role, updated.Role)
	assert.Equal(t, account.PasswordHash, updated.PasswordHash)
}

func TestUpdateProfileValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	account, err := f.svc.Signup(ctx, signupInput())
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, account.ID, types.ProfileUpdate{Phone: "12345"})
	assert.ErrorIs(t, err, ErrInvalidAccount)

	_, err = f.svc.UpdateProfile(ctx, account.ID, types.ProfileUpdate{Gender: "robot"})
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestProfileNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	_, err = f.svc.UpdateProfile(ctx, "missing", types.ProfileUpdate{FullName: "x"})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
