// Package auth provides the hashed-credential user store backing login
// and registration.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// User is a registered account. Credential material never leaves this
// package.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Institution string    `json:"institution"`
	Department  string    `json:"department"`
	CreatedAt   time.Time `json:"createdAt"`
}

var (
	// ErrEmailTaken means the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials means the email/password pair did not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Store is a SQLite-backed credential store.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the user database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		institution TEXT,
		department TEXT,
		password_hash TEXT NOT NULL,
		salt TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Register creates a user with a salted sha256 password hash. The email
// is stored lowercased and must be unique.
func (s *Store) Register(ctx context.Context, name, email, password, institution, department string) (User, error) {
	if name == "" || email == "" || password == "" {
		return User{}, errors.New("name, email, and password are required")
	}
	if len(password) < 6 {
		return User{}, errors.New("password must be at least 6 characters")
	}
	email = strings.ToLower(email)

	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return User{}, fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(saltBytes)

	u := User{
		ID:          uuid.New().String(),
		Name:        name,
		Email:       email,
		Institution: institution,
		Department:  department,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, institution, department, password_hash, salt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Institution, u.Department, hashPassword(password, salt), salt, u.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate verifies the email/password pair and returns the user.
// Lookup miss and hash mismatch are indistinguishable to the caller.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	var u User
	var hash, salt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, institution, department, password_hash, salt, created_at
		 FROM users WHERE email = ?`, strings.ToLower(email),
	).Scan(&u.ID, &u.Name, &u.Email, &u.Institution, &u.Department, &hash, &salt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if hashPassword(password, salt) != hash {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}
