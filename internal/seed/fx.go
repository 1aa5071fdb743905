package seed

import (
	"context"

	"github.com/smallbiznis/nexusguard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Provide(NewSeeder),
	fx.Invoke(register),
)

// register seeds on start and again whenever the bootstrap file changes.
func register(lc fx.Lifecycle, cfg config.Config, holder *config.BootstrapHolder, seeder *Seeder, log *zap.Logger) {
	if !cfg.BootstrapEnabled {
		log.Info("bootstrap seeding disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := seeder.EnsureBootstrapOrganization(ctx, holder.Get()); err != nil {
				return err
			}
			holder.OnChange(func(next config.BootstrapConfig) {
				if err := seeder.EnsureBootstrapOrganization(context.Background(), next); err != nil {
					log.Error("bootstrap reseed failed", zap.Error(err))
				}
			})
			return nil
		},
	})
}
