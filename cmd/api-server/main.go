// Command api-server serves the checkout API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	shop "github.com/xenking/oralcare-shop/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := shop.LoadConfig()
		if err != nil {
			return err
		}
		lg.Info("Starting",
			zap.String("addr", cfg.Addr),
			zap.String("psp", cfg.PSP.BaseURL),
			zap.Strings("kafka_brokers", cfg.Events.Brokers),
		)
		return shop.Run(ctx, lg, m, cfg)
	})
}
