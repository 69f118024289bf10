package providers

import (
	"github.com/smallbiznis/cookiejar/internal/providers/email"
	"github.com/smallbiznis/cookiejar/internal/providers/events"
	"github.com/smallbiznis/cookiejar/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	events.Module,
	pdf.Module,
)
