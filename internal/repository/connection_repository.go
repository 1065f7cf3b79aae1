package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postengine/internal/models"
)

type ConnectionRepository interface {
	// GetActive returns nil, nil when no active connection exists for the platform.
	GetActive(ctx context.Context, platform models.Platform) (*models.PlatformConnection, error)
	List(ctx context.Context) ([]*models.PlatformConnection, error)
	// UpdateToken persists a refreshed token. An empty refreshToken keeps the
	// stored one (not every platform rotates refresh tokens).
	UpdateToken(ctx context.Context, platform models.Platform, accessToken, refreshToken string, expiresAt time.Time) error
	SetAccountRef(ctx context.Context, platform models.Platform, accountRef string) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `platform, access_token, refresh_token, expires_at, account_ref, is_active, updated_at`

func (r *connectionRepository) GetActive(ctx context.Context, platform models.Platform) (*models.PlatformConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM platform_connections WHERE platform = $1 AND is_active = TRUE`
	row := r.db.QueryRowContext(ctx, query, platform)

	var conn models.PlatformConnection
	var refreshToken, accountRef sql.NullString
	err := row.Scan(&conn.Platform, &conn.AccessToken, &refreshToken, &conn.ExpiresAt,
		&accountRef, &conn.IsActive, &conn.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	conn.RefreshToken = refreshToken.String
	conn.AccountRef = accountRef.String

	return &conn, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*models.PlatformConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM platform_connections ORDER BY platform`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var conns []*models.PlatformConnection
	for rows.Next() {
		var conn models.PlatformConnection
		var refreshToken, accountRef sql.NullString
		err := rows.Scan(&conn.Platform, &conn.AccessToken, &refreshToken, &conn.ExpiresAt,
			&accountRef, &conn.IsActive, &conn.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		conn.RefreshToken = refreshToken.String
		conn.AccountRef = accountRef.String
		conns = append(conns, &conn)
	}
	return conns, rows.Err()
}

func (r *connectionRepository) UpdateToken(ctx context.Context, platform models.Platform, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE platform_connections
		SET access_token = $2,
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			expires_at = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE platform = $1
	`
	result, err := r.db.ExecContext(ctx, query, platform, accessToken, refreshToken, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no connection row updated", "platform", string(platform))
	}
	return nil
}

func (r *connectionRepository) SetAccountRef(ctx context.Context, platform models.Platform, accountRef string) error {
	query := `
		UPDATE platform_connections
		SET account_ref = $2, updated_at = CURRENT_TIMESTAMP
		WHERE platform = $1
	`
	_, err := r.db.ExecContext(ctx, query, platform, accountRef)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
