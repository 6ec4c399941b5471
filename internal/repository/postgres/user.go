package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// UserStore implements the user and session contracts using PostgreSQL.
type UserStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewUserStore creates a new UserStore
func NewUserStore(config *RepositoryConfig) *UserStore {
	return &UserStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

var _ repositories.UserStore = (*UserStore)(nil)
var _ repositories.SessionStore = (*UserStore)(nil)

// CreateUser inserts a new account and returns its id.
func (s *UserStore) CreateUser(ctx context.Context, username, passwordHash, role string) (string, error) {
	id := uuid.New().String()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, username, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.tables.Users)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, id, username, passwordHash, role, time.Now().UTC()); err != nil {
		if IsPgDuplicateError(err) {
			return "", fmt.Errorf("user '%s': %w", username, domain.ErrConflict)
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername retrieves an account by username.
func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, username, password_hash, role, created_at
		FROM %s
		WHERE username = $1
	`, s.tables.Users)
	return s.scanUser(ctx, query, username)
}

// GetUserByID retrieves an account by id.
func (s *UserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT id, username, password_hash, role, created_at
		FROM %s
		WHERE id = $1
	`, s.tables.Users)
	return s.scanUser(ctx, query, id)
}

func (s *UserStore) scanUser(ctx context.Context, query, arg string) (*models.User, error) {
	executor := GetExecutor(ctx, s.pool)

	var user models.User
	err := executor.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("user: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// CountUsers reports how many accounts exist.
func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.tables.Users)

	executor := GetExecutor(ctx, s.pool)
	var count int
	if err := executor.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// CreateSession issues a new session token for the user.
func (s *UserStore) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	token := uuid.New().String()

	query := fmt.Sprintf(`
		INSERT INTO %s (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`, s.tables.Sessions)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, token, userID, expiresAt, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// GetSession retrieves a live session; expired sessions are treated as
// absent.
func (s *UserStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT token, user_id, expires_at, created_at
		FROM %s
		WHERE token = $1 AND expires_at > NOW()
	`, s.tables.Sessions)

	executor := GetExecutor(ctx, s.pool)

	var session models.Session
	err := executor.QueryRow(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// DeleteSession revokes a session token.
func (s *UserStore) DeleteSession(ctx context.Context, token string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE token = $1`, s.tables.Sessions)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
