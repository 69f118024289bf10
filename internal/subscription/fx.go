package subscription

import (
	"github.com/smallbiznis/cookiejar/internal/subscription/repository"
	"github.com/smallbiznis/cookiejar/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.ProvideService),
	fx.Provide(service.ProvideMirror),
)
