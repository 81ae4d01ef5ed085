// ABOUTME: User account operations: admin creation and password authentication
// ABOUTME: Passwords are bcrypt hashed; hashes never leave this package in user structs
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/crmdesk/models"
	"golang.org/x/crypto/bcrypt"
)

// NewUser is the input for account creation.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckRole rejects anything but the admin and standard roles.
func CheckRole(role string) error {
	if role != models.RoleAdmin && role != models.RoleStandard {
		return fmt.Errorf("%w: role %q", ErrInvalidValue, role)
	}
	return nil
}

// UserRow builds a users row with a hashed password. An empty role means standard.
func UserRow(u NewUser) (Row, error) {
	if strings.TrimSpace(u.Name) == "" || strings.TrimSpace(u.Email) == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidValue)
	}
	hash, err := HashPassword(u.Password)
	if err != nil {
		return nil, err
	}
	role := u.Role
	if role == "" {
		role = models.RoleStandard
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	return Row{
		"name":          u.Name,
		"email":         NormalizeEmail(u.Email),
		"password_hash": hash,
		"role":          role,
		"created_at":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// CreateAdminUser inserts a user with role admin.
func (s *Store) CreateAdminUser(ctx context.Context, u NewUser) (int64, error) {
	u.Role = models.RoleAdmin
	row, err := UserRow(u)
	if err != nil {
		return 0, err
	}
	return s.Insert(ctx, Users, row)
}

// AuthenticateUser returns the user for valid credentials and nil for any mismatch.
func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	rows, err := s.Query(ctx,
		`SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = ?`,
		NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	def, _ := Users.Def()
	return MatchUser(def.Normalize(rows[0]), password), nil
}

// MatchUser verifies password against a users row and returns the user without its hash.
func MatchUser(row Row, password string) *models.User {
	hash, _ := row["password_hash"].(string)
	if !CheckPassword(hash, password) {
		return nil
	}

	var user models.User
	if err := models.FromRow(StripSecrets(Users, []Row{row})[0], &user); err != nil {
		return nil
	}
	return &user
}

// StripSecrets returns copies of user rows without password hashes; other tables pass through.
func StripSecrets(table Table, rows []Row) []Row {
	if table != Users {
		return rows
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		c := make(Row, len(r))
		for k, v := range r {
			if k == "password_hash" {
				continue
			}
			c[k] = v
		}
		out[i] = c
	}
	return out
}
