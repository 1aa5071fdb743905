package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexusguard/internal/clock"
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/smallbiznis/nexusguard/internal/migration"
	"github.com/smallbiznis/nexusguard/internal/observability"
	"github.com/smallbiznis/nexusguard/internal/seed"
	"github.com/smallbiznis/nexusguard/internal/server"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Bootstrap organization, then the HTTP surface with its domains
		seed.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
