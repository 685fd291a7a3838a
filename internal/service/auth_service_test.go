package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"authgate/internal/entity"
	"authgate/internal/password"
	"authgate/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- fakes ---

type fakeUserRepo struct {
	users     map[uuid.UUID]*entity.User
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*entity.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *entity.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) Activate(_ context.Context, userID uuid.UUID) error {
	if user, ok := f.users[userID]; ok {
		user.IsActive = true
	}
	return nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, userID uuid.UUID, hash string) error {
	if user, ok := f.users[userID]; ok {
		user.PasswordHash = hash
	}
	return nil
}

type fakeTokenRepo struct {
	users  *fakeUserRepo
	tokens map[string]*entity.AuthToken
}

func newFakeTokenRepo(users *fakeUserRepo) *fakeTokenRepo {
	return &fakeTokenRepo{users: users, tokens: make(map[string]*entity.AuthToken)}
}

func (f *fakeTokenRepo) Create(_ context.Context, token *entity.AuthToken) error {
	copied := *token
	f.tokens[token.Key] = &copied
	return nil
}

func (f *fakeTokenRepo) FindByKey(ctx context.Context, key string) (*entity.AuthToken, error) {
	token, ok := f.tokens[key]
	if !ok {
		return nil, nil
	}
	copied := *token
	if user, _ := f.users.FindByID(ctx, token.UserID); user != nil {
		copied.User = *user
	}
	return &copied, nil
}

func (f *fakeTokenRepo) DeleteByKey(_ context.Context, key string) error {
	delete(f.tokens, key)
	return nil
}

func (f *fakeTokenRepo) DeleteAllByUser(_ context.Context, userID uuid.UUID) error {
	for key, token := range f.tokens {
		if token.UserID == userID {
			delete(f.tokens, key)
		}
	}
	return nil
}

func (f *fakeTokenRepo) DeleteExpired(_ context.Context, now time.Time) error {
	for key, token := range f.tokens {
		if !token.ExpiresAt.After(now) {
			delete(f.tokens, key)
		}
	}
	return nil
}

type fakeCodeRepo struct {
	rows []*entity.VerificationCode
}

func (f *fakeCodeRepo) Create(_ context.Context, c *entity.VerificationCode) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	copied := *c
	f.rows = append(f.rows, &copied)
	return nil
}

func (f *fakeCodeRepo) FindLatest(_ context.Context, email string, code string) (*entity.VerificationCode, error) {
	var matches []*entity.VerificationCode
	for _, row := range f.rows {
		if row.Email == email && row.Code == code {
			matches = append(matches, row)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	copied := *matches[0]
	return &copied, nil
}

func (f *fakeCodeRepo) MarkUsed(_ context.Context, id uuid.UUID) error {
	for _, row := range f.rows {
		if row.ID == id {
			row.Used = true
		}
	}
	return nil
}

func (f *fakeCodeRepo) DeleteExpired(_ context.Context, now time.Time) error {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.ExpiresAt.After(now) {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

type fakeLogRepo struct {
	entries []*entity.SecurityLog
}

func (f *fakeLogRepo) Log(_ context.Context, log *entity.SecurityLog) error {
	f.entries = append(f.entries, log)
	return nil
}

type fakeManager struct {
	users  *fakeUserRepo
	tokens *fakeTokenRepo
	codes  *fakeCodeRepo
	logs   *fakeLogRepo
}

func newFakeManager() *fakeManager {
	users := newFakeUserRepo()
	return &fakeManager{
		users:  users,
		tokens: newFakeTokenRepo(users),
		codes:  &fakeCodeRepo{},
		logs:   &fakeLogRepo{},
	}
}

func (m *fakeManager) Users() repository.UserRepository             { return m.users }
func (m *fakeManager) Tokens() repository.AuthTokenRepository       { return m.tokens }
func (m *fakeManager) Codes() repository.VerificationCodeRepository { return m.codes }
func (m *fakeManager) SecurityLogs() repository.SecurityLogRepository {
	return m.logs
}

func (m *fakeManager) Atomic(_ context.Context, fn func(tx repository.Manager) error) error {
	return fn(m)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type recordingSender struct {
	sent []string // codes in send order
	err  error
}

func (s *recordingSender) SendOTPEmail(_ context.Context, _ string, code string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, code)
	return nil
}

func (s *recordingSender) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1]
}

type testEnv struct {
	service *AuthService
	repos   *fakeManager
	sender  *recordingSender
	clock   *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repos := newFakeManager()
	sender := &recordingSender{}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewAuthService(
		repos,
		NewCredentialManager(BcryptPasswordHasher{Cost: bcrypt.MinCost}, password.NewDefaultPolicy()),
		sender,
		clock,
		logger,
		AuthConfig{},
	)
	return &testEnv{service: svc, repos: repos, sender: sender, clock: clock}
}

const (
	testEmail    = "a@x.com"
	testPassword = "pw123456"
)

func (e *testEnv) register(t *testing.T) {
	t.Helper()
	require.NoError(t, e.service.Register(context.Background(), testEmail, testPassword))
}

func (e *testEnv) registerVerified(t *testing.T) {
	t.Helper()
	e.register(t)
	require.NoError(t, e.service.VerifyRegistration(context.Background(), testEmail, e.sender.lastCode(t)))
}

// --- tests ---

func TestRegister_CreatesInactiveUserAndCode(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	user, err := env.repos.users.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.False(t, user.IsActive)
	assert.NotEqual(t, testPassword, user.PasswordHash)

	require.Len(t, env.sender.sent, 1)
	code := env.sender.sent[0]
	assert.Len(t, code, 6)

	row, err := env.repos.codes.FindLatest(context.Background(), testEmail, code)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, env.clock.now.Add(10*time.Minute), row.ExpiresAt)
	assert.False(t, row.Used)
}

func TestRegister_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.service.Register(context.Background(), "  A@X.com ", testPassword))

	user, err := env.repos.users.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, testEmail, user.Email)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	err := env.service.Register(context.Background(), "A@X.COM", "otherpw9876")
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered)
}

func TestRegister_DuplicateFromUniqueConstraint(t *testing.T) {
	// Simulates losing the insert race: the application-level check passed
	// but the store's unique index rejected the row.
	env := newTestEnv(t)
	env.repos.users.createErr = gorm.ErrDuplicatedKey

	err := env.service.Register(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered)
}

func TestRegister_RejectsWeakPasswords(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]error{
		"short":          password.ErrTooShort,
		"12345678":       password.ErrEntirelyNumeric,
		"password123":    password.ErrTooCommon,
		"xyz.a@x.com.99": password.ErrSimilarToEmail,
	}
	for pw, want := range cases {
		err := env.service.Register(context.Background(), testEmail, pw)
		assert.ErrorIs(t, err, want, "password %q", pw)
	}
	user, err := env.repos.users.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRegister_EmailFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t)
	env.sender.err = errors.New("smtp down")

	require.NoError(t, env.service.Register(context.Background(), testEmail, testPassword))

	user, err := env.repos.users.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.NotNil(t, user)
	// The code row exists even though delivery failed.
	assert.Len(t, env.repos.codes.rows, 1)
}

func TestVerifyRegistration_ActivatesAndConsumes(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)
	code := env.sender.lastCode(t)

	require.NoError(t, env.service.VerifyRegistration(context.Background(), testEmail, code))

	user, err := env.repos.users.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.IsActive)

	row, err := env.repos.codes.FindLatest(context.Background(), testEmail, code)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.Used)
}

func TestVerifyRegistration_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	err := env.service.VerifyRegistration(context.Background(), "nobody@x.com", "123456")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerifyRegistration_WrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	wrong := "000000"
	if env.sender.lastCode(t) == wrong {
		wrong = "000001"
	}
	err := env.service.VerifyRegistration(context.Background(), testEmail, wrong)
	assert.ErrorIs(t, err, ErrInvalidCode)

	user, _ := env.repos.users.FindByEmail(context.Background(), testEmail)
	assert.False(t, user.IsActive)
}

func TestVerifyRegistration_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)
	code := env.sender.lastCode(t)

	require.NoError(t, env.service.VerifyRegistration(context.Background(), testEmail, code))
	err := env.service.VerifyRegistration(context.Background(), testEmail, code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyRegistration_ExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)
	code := env.sender.lastCode(t)

	env.clock.now = env.clock.now.Add(10*time.Minute + time.Second)
	err := env.service.VerifyRegistration(context.Background(), testEmail, code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyRegistration_LatestCodeWins(t *testing.T) {
	// Two codes with the same digits: the newer row is the one consulted,
	// even when the older one is already burned.
	env := newTestEnv(t)
	env.register(t)
	code := env.sender.lastCode(t)

	old, err := env.repos.codes.FindLatest(context.Background(), testEmail, code)
	require.NoError(t, err)
	require.NoError(t, env.repos.codes.MarkUsed(context.Background(), old.ID))

	require.NoError(t, env.repos.codes.Create(context.Background(), &entity.VerificationCode{
		Email:     testEmail,
		Code:      code,
		CreatedAt: old.CreatedAt.Add(time.Minute),
		ExpiresAt: env.clock.now.Add(10 * time.Minute),
	}))

	assert.NoError(t, env.service.VerifyRegistration(context.Background(), testEmail, code))
}

func TestLogin_IssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)

	token, err := env.service.Login(context.Background(), testEmail, testPassword, nil)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.NotEmpty(t, token.Key)
	assert.Equal(t, env.clock.now.Add(7*24*time.Hour), token.ExpiresAt)

	resolved, err := env.repos.tokens.FindByKey(context.Background(), token.Key)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, testEmail, resolved.User.Email)
}

func TestLogin_MultiSession(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)

	first, err := env.service.Login(context.Background(), testEmail, testPassword, nil)
	require.NoError(t, err)
	second, err := env.service.Login(context.Background(), testEmail, testPassword, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.Len(t, env.repos.tokens.tokens, 2)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)

	_, err := env.service.Login(context.Background(), testEmail, "wrongpw123", nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownEmailSameError(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)

	_, err := env.service.Login(context.Background(), "nobody@x.com", testPassword, nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnverifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	_, err := env.service.Login(context.Background(), testEmail, testPassword, nil)
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)
	token, err := env.service.Login(context.Background(), testEmail, testPassword, nil)
	require.NoError(t, err)

	require.NoError(t, env.service.Logout(context.Background(), token.Key, nil, nil))
	resolved, err := env.repos.tokens.FindByKey(context.Background(), token.Key)
	require.NoError(t, err)
	assert.Nil(t, resolved)

	// Again with the same key, and with no key at all.
	assert.NoError(t, env.service.Logout(context.Background(), token.Key, nil, nil))
	assert.NoError(t, env.service.Logout(context.Background(), "", nil, nil))
}

func TestRequestPasswordReset_UnknownUser(t *testing.T) {
	env := newTestEnv(t)
	err := env.service.RequestPasswordReset(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPasswordReset_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)
	token, err := env.service.Login(context.Background(), testEmail, testPassword, nil)
	require.NoError(t, err)

	require.NoError(t, env.service.RequestPasswordReset(context.Background(), testEmail))
	code := env.sender.lastCode(t)

	newPassword := "newpw12345"
	require.NoError(t, env.service.ConfirmPasswordReset(context.Background(), testEmail, code, newPassword))

	_, err = env.service.Login(context.Background(), testEmail, testPassword, nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "old password must stop working")

	_, err = env.service.Login(context.Background(), testEmail, newPassword, nil)
	assert.NoError(t, err, "new password must work")

	resolved, err := env.repos.tokens.FindByKey(context.Background(), token.Key)
	require.NoError(t, err)
	assert.Nil(t, resolved, "existing sessions must be revoked on reset")
}

func TestConfirmPasswordReset_CodeSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)
	require.NoError(t, env.service.RequestPasswordReset(context.Background(), testEmail))
	code := env.sender.lastCode(t)

	require.NoError(t, env.service.ConfirmPasswordReset(context.Background(), testEmail, code, "newpw12345"))
	err := env.service.ConfirmPasswordReset(context.Background(), testEmail, code, "anotherpw99")
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestConfirmPasswordReset_PolicyApplies(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t)
	require.NoError(t, env.service.RequestPasswordReset(context.Background(), testEmail))
	code := env.sender.lastCode(t)

	err := env.service.ConfirmPasswordReset(context.Background(), testEmail, code, "short")
	assert.ErrorIs(t, err, password.ErrTooShort)

	// The code must survive a rejected password for a retry.
	assert.NoError(t, env.service.ConfirmPasswordReset(context.Background(), testEmail, code, "newpw12345"))
}
