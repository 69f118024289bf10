package billingsync

import (
	"github.com/smallbiznis/cookiejar/internal/billingsync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingsync.service",
	fx.Provide(service.New),
)
