package media

import (
	"github.com/smallbiznis/cookiejar/internal/media/service"
	"github.com/smallbiznis/cookiejar/internal/media/store"
	"go.uber.org/fx"
)

var Module = fx.Module("media.service",
	fx.Provide(store.NewFromConfig),
	fx.Provide(service.New),
)
