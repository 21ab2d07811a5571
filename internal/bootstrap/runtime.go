// Package bootstrap connects the runtime dependencies shared by the server
// and the command-line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"secmaster/internal/cache"
	"secmaster/internal/config"
	"secmaster/internal/database"
	"secmaster/internal/models"
	"secmaster/internal/observability"
	"secmaster/internal/seed"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedReference loads the embedded market taxonomy after connecting.
	SeedReference bool
}

// InitRuntime connects to DB and Redis, ensures the development bypass
// admin and optionally seeds reference data. The Redis client is nil when
// Redis is unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	rootID, err := ensureDevRootAdmin(cfg, db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	if opts.SeedReference {
		if rootID == 0 {
			return nil, nil, errors.New("reference seeding needs DEV_BOOTSTRAP_ROOT to provide an acting admin")
		}
		if _, err := seed.Reference(context.Background(), db, rootID); err != nil {
			return nil, nil, fmt.Errorf("failed to seed reference data: %w", err)
		}
	}

	return db, r, nil
}

// ensureDevRootAdmin makes user 1 a bypass admin with the configured
// credentials. It only runs in development with DEV_BOOTSTRAP_ROOT set and
// returns the admin id, or 0 when skipped.
func ensureDevRootAdmin(cfg *config.Config, db *gorm.DB) (uint, error) {
	if cfg == nil || db == nil {
		return 0, nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return 0, nil
	}

	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = "root@secmaster.local"
	}
	password := cfg.DevRootPassword
	if password == "" {
		return 0, fmt.Errorf("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}
	role := cfg.BypassRole
	if role == "" {
		role = models.RoleSuperAdmin
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash root password: %w", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.Unscoped().First(&root, 1).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			root = models.User{
				EntityMeta: models.EntityMeta{ID: 1, ApprovalStatus: models.EntityStatusActive},
				UserFields: models.UserFields{
					FirstName:    models.Ptr("Root"),
					LastName:     models.Ptr("Admin"),
					Email:        models.Ptr(email),
					Role:         models.Ptr(role),
					PasswordHash: models.Ptr(string(hashedPassword)),
				},
			}
			if err := tx.Create(&root).Error; err != nil {
				return err
			}
		case findErr != nil:
			return findErr
		default:
			updates := map[string]any{
				"role":          role,
				"email":         email,
				"password_hash": string(hashedPassword),
				"deleted_at":    nil,
			}
			if err := tx.Unscoped().Model(&models.User{}).Where("id = ?", 1).Updates(updates).Error; err != nil {
				return err
			}
		}

		// Explicit id insertion leaves the PostgreSQL sequence behind.
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec(`
				SELECT setval(
					pg_get_serial_sequence('users', 'id'),
					GREATEST((SELECT COALESCE(MAX(id), 1) FROM users), 1),
					true
				)
			`).Error; err != nil {
				return fmt.Errorf("failed to reset users sequence: %w", err)
			}
		}
		return nil
	}); err != nil {
		return 0, err
	}

	observability.Logger.Info("development root admin ensured",
		slog.Uint64("user_id", 1), slog.String("email", email), slog.String("role", role))
	return 1, nil
}
