package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"secmaster/internal/config"
	"secmaster/internal/observability"

	"gorm.io/gorm"
)

// Schema modes accepted in DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid" // embedded SQL, plus AutoMigrate outside protected environments
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// partialIndexes are the constraints the gorm struct tags cannot express.
// The statements are valid for both postgres and sqlite.
var partialIndexes = []struct {
	name string
	ddl  string
}{
	{
		name: "idx_securities_isin_live",
		ddl:  "CREATE UNIQUE INDEX IF NOT EXISTS idx_securities_isin_live ON securities (isin) WHERE deleted_at IS NULL",
	},
}

// SchemaPlan describes what ApplySchema does for a configuration.
type SchemaPlan struct {
	Mode        string
	Environment string
	SQL         bool
	AutoMigrate bool
}

// SchemaStatus is a SchemaPlan plus the migration ledger of the database.
type SchemaStatus struct {
	SchemaPlan
	Applied []int
	Pending []Migration
}

// protectedEnv reports whether env holds real catalogue data.
func protectedEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

// PlanSchema resolves DB_SCHEMA_MODE against the environment. AutoMigrate
// is refused in protected environments unless explicitly allowed.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	plan := SchemaPlan{
		Mode:        strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)),
		Environment: cfg.Env,
	}
	if plan.Mode == "" {
		plan.Mode = SchemaModeHybrid
	}

	guarded := protectedEnv(cfg.Env)
	switch plan.Mode {
	case SchemaModeSQL:
		plan.SQL = true
	case SchemaModeHybrid:
		plan.SQL = true
		plan.AutoMigrate = !guarded
	case SchemaModeAuto:
		if guarded && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("DB_SCHEMA_MODE=auto is refused in %q unless DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.AutoMigrate = true
	default:
		return plan, fmt.Errorf("unknown DB_SCHEMA_MODE %q", plan.Mode)
	}
	return plan, nil
}

// AutoMigrate builds the catalogue tables from the models and then adds the
// partial indexes, so one live security per ISIN holds in every mode.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate catalogue: %w", err)
	}
	for _, idx := range partialIndexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// ApplySchema brings the database up to date according to cfg.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}
	log := observability.Logger.With(slog.String("schema_mode", plan.Mode), slog.String("env", plan.Environment))

	if plan.SQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations: %w", err)
		}
	}
	if !plan.AutoMigrate {
		return nil
	}

	if protectedEnv(cfg.Env) {
		log.WarnContext(ctx, "auto-migrating a protected environment; column changes are applied unreviewed")
	}
	log.InfoContext(ctx, "auto-migrating catalogue tables",
		slog.Int("models", len(PersistentModels())), slog.Int("partial_indexes", len(partialIndexes)))
	return AutoMigrate(ctx, db)
}

// GetSchemaStatus reports the plan for cfg and, when SQL migrations are part
// of it, which embedded migrations are still pending.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{SchemaPlan: plan}
	if !plan.SQL {
		return status, nil
	}
	if registerErr != nil {
		return nil, registerErr
	}

	if status.Applied, err = appliedVersions(ctx, db); err != nil {
		return nil, err
	}
	if status.Pending, err = pendingMigrations(registered, status.Applied); err != nil {
		return nil, err
	}
	return status, nil
}
