package db

import (
	"context"
	"errors"
	"testing"

	"github.com/harperreed/crmdesk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateUserEmptyTable(t *testing.T) {
	s := setupTestDB(t)

	user, err := s.AuthenticateUser(context.Background(), "nobody@x.com", "pw")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestCreateAdminAndAuthenticate(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id, err := s.CreateAdminUser(ctx, NewUser{Name: "Root", Email: "Root@Example.com", Password: "s3cret"})
	require.NoError(t, err)

	user, err := s.AuthenticateUser(ctx, "root@example.com", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Empty(t, user.PasswordHash)

	wrong, err := s.AuthenticateUser(ctx, "root@example.com", "nope")
	require.NoError(t, err)
	assert.Nil(t, wrong)

	// Stored hash is bcrypt, never the plaintext.
	rows, err := s.GetAll(ctx, Users)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEqual(t, "s3cret", rows[0]["password_hash"])
	assert.True(t, CheckPassword(rows[0]["password_hash"].(string), "s3cret"))
}

func TestUserRowValidation(t *testing.T) {
	_, err := UserRow(NewUser{Name: "", Email: "a@b.c", Password: "pw"})
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = UserRow(NewUser{Name: "A", Email: "a@b.c", Password: "pw", Role: "superuser"})
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = UserRow(NewUser{Name: "A", Email: "a@b.c"})
	assert.Error(t, err)

	row, err := UserRow(NewUser{Name: "A", Email: " A@B.C ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", row["email"])
	assert.Equal(t, models.RoleStandard, row["role"])
}

func TestStripSecrets(t *testing.T) {
	rows := []Row{{"id": int64(1), "email": "a@b.c", "password_hash": "$2a$..."}}

	stripped := StripSecrets(Users, rows)
	assert.NotContains(t, stripped[0], "password_hash")
	assert.Contains(t, rows[0], "password_hash", "input rows are not modified")

	other := []Row{{"id": int64(1), "password_hash": "kept"}}
	assert.Equal(t, other, StripSecrets(Contacts, other))
}
