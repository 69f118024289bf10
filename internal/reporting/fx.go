package reporting

import (
	"github.com/smallbiznis/cookiejar/internal/reporting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reporting.service",
	fx.Provide(service.NewService),
)
