package syncmetrics

import "go.uber.org/fx"

var Module = fx.Module("sync.metrics",
	fx.Provide(NewPusher),
	fx.Provide(NewReporter),
	fx.Provide(ProvideRunReporter),
)
