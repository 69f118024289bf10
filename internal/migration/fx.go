package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			version, err := RunMigrations(sqlDB, log)
			if err != nil {
				return err
			}
			log.Info("schema ready", zap.Uint("version", version))
		} else {
			log.Warn("skipping embedded migrations for non-postgres database", zap.String("db_type", cfg.DBType))
		}

		created, err := seed.EnsureAdmin(context.Background(), conn, node, cfg.Admin)
		if err != nil {
			return err
		}
		if created {
			log.Info("bootstrap admin created", zap.String("email", cfg.Admin.Email))
		}
		return nil
	}),
)
