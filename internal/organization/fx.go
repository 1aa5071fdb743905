package organization

import (
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/smallbiznis/nexusguard/internal/eid"
	"github.com/smallbiznis/nexusguard/internal/organization/repository"
	"github.com/smallbiznis/nexusguard/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(cfg config.Config) eid.Generator { return eid.NewGenerator(cfg.EIDPrefix) }),
	fx.Provide(service.NewService),
)
