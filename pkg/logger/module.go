package logger

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the application logger and the HTTP access logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
	fx.Provide(NewManagedHTTPLogger),
)

// NewManagedHTTPLogger builds an HTTPLogger whose file handle is closed on
// application shutdown.
func NewManagedHTTPLogger(lc fx.Lifecycle) (*HTTPLogger, error) {
	h, err := NewHTTPLogger()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return h.Close()
		},
	})
	return h, nil
}
