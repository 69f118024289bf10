package productunit

import (
	"github.com/smallbiznis/cookiejar/internal/productunit/repository"
	"github.com/smallbiznis/cookiejar/internal/productunit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("productunit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
