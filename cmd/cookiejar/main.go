package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/migration"
	"github.com/smallbiznis/cookiejar/internal/observability"
	"github.com/smallbiznis/cookiejar/internal/server"
	"github.com/smallbiznis/cookiejar/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
