package auth

import (
	"context"
	"testing"

	"delu/internal/models"
	"delu/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUserRepo struct {
	users  map[uint]*models.User
	nextID uint
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uint]*models.User)}
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	for _, u := range r.users {
		if u.Email == user.Email || u.Phone == user.Phone {
			return repositories.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *memUserRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	for _, u := range r.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *memUserRepo) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	for _, u := range r.users {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *memUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return repositories.ErrUserNotFound
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) Delete(ctx context.Context, id uint) error {
	delete(r.users, id)
	return nil
}

func (r *memUserRepo) List(ctx context.Context, limit, offset int) ([]models.User, int64, error) {
	var out []models.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (r *memUserRepo) IncrementTokenVersion(ctx context.Context, id uint) error {
	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.TokenVersion++
	return nil
}

func (r *memUserRepo) GetTokenVersion(ctx context.Context, id uint) (int, error) {
	u, ok := r.users[id]
	if !ok {
		return 0, repositories.ErrUserNotFound
	}
	return u.TokenVersion, nil
}

func signupInput(name string) SignupInput {
	return SignupInput{
		Email:    name + "@campus.test",
		Password: "hunter2hunter2",
		Name:     name,
		Phone:    "9" + name,
		Block:    "Hostel 3",
	}
}

func TestSignupGeneratesReferralCode(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewService(repo)

	user, err := svc.Signup(context.Background(), signupInput("asha"))
	require.NoError(t, err)

	assert.Regexp(t, "^[0-9A-F]{8}$", user.ReferralCode)
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, 0.0, user.WalletBalance)
	assert.NotEqual(t, "hunter2hunter2", user.Password, "password must be hashed")
}

func TestSignupValidatesReferredByCode(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	referrer, err := svc.Signup(ctx, signupInput("asha"))
	require.NoError(t, err)

	in := signupInput("bilal")
	in.ReferredByCode = "NOPE0000"
	_, err = svc.Signup(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidReferralCode)

	in.ReferredByCode = referrer.ReferralCode
	referee, err := svc.Signup(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, referrer.ReferralCode, referee.ReferredByCode)
}

func TestSignupRejectsWeakPasswordAndDuplicates(t *testing.T) {
	repo := newMemUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	in := signupInput("asha")
	in.Password = "short"
	_, err := svc.Signup(ctx, in)
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Signup(ctx, signupInput("asha"))
	require.NoError(t, err)
	_, err = svc.Signup(ctx, signupInput("asha"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginAndTokenLifecycle(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	repo := newMemUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Signup(ctx, signupInput("asha"))
	require.NoError(t, err)

	_, _, _, err = svc.Login(ctx, created.Email, "", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, access, refresh, err := svc.Login(ctx, created.Email, "", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	// Refresh works while the token version matches.
	newAccess, newRefresh, err := svc.RefreshTokens(ctx, refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)

	// Logout bumps the version and retires outstanding refresh tokens.
	require.NoError(t, svc.Logout(ctx, user.ID))
	_, _, err = svc.RefreshTokens(ctx, refresh)
	assert.Error(t, err)
}

func TestLoginByPhone(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	repo := newMemUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Signup(ctx, signupInput("asha"))
	require.NoError(t, err)

	user, _, _, err := svc.Login(ctx, "", created.Phone, "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
}

func TestChangePassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	repo := newMemUserRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Signup(ctx, signupInput("asha"))
	require.NoError(t, err)

	assert.Error(t, svc.ChangePassword(ctx, created.ID, "wrong", "newpassword123"))
	assert.ErrorIs(t, svc.ChangePassword(ctx, created.ID, "hunter2hunter2", "short"), ErrWeakPassword)

	require.NoError(t, svc.ChangePassword(ctx, created.ID, "hunter2hunter2", "newpassword123"))

	_, _, _, err = svc.Login(ctx, created.Email, "", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, _, err = svc.Login(ctx, created.Email, "", "newpassword123")
	require.NoError(t, err)
}
