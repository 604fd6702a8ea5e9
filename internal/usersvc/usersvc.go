// Package usersvc resolves usernames to users and verifies passwords,
// adapted from this codebase's repository (lib/pq over database/sql) and
// auth (bcrypt) packages.
package usersvc

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/notehub/collab/internal/models"
)

// Service resolves users by username, the only lookup the connection
// admitter needs.
type Service interface {
	ByUsername(username string) (*models.User, error)
}

// PostgresService looks users up in Postgres, mirroring the
// scan-into-struct query style used throughout this codebase's
// repository layer.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService wraps an existing *sql.DB.
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// ByUsername fetches one user by username.
func (s *PostgresService) ByUsername(username string) (*models.User, error) {
	u := &models.User{}
	query := `
		SELECT id, username, email, password, is_admin, created_at, updated_at
		FROM users WHERE username = $1`

	err := s.db.QueryRow(query, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.Password, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("usersvc: user %q not found", username)
		}
		return nil, err
	}
	return u, nil
}

// CheckPassword validates a password against its bcrypt hash.
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
