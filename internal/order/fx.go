package order

import (
	"github.com/smallbiznis/cookiejar/internal/order/repository"
	"github.com/smallbiznis/cookiejar/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.ProvideService),
	fx.Provide(service.ProvideTransitioner),
)
