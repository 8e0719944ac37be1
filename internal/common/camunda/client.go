package camunda

import (
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	MaxRetries             int
	BaseDelay              time.Duration
}

// Connect dials the Zeebe gateway with exponential backoff. The broker is the
// message-channel boundary: one job per inbound chat message.
func Connect(cfg ClientConfig, log *zap.Logger) (zbc.Client, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 2 * time.Second
	}

	var client zbc.Client
	var err error
	delay := cfg.BaseDelay

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		client, err = zbc.NewClient(&zbc.ClientConfig{
			GatewayAddress:         cfg.GatewayAddress,
			UsePlaintextConnection: cfg.UsePlaintextConnection,
		})
		if err == nil {
			return client, nil
		}

		if attempt < cfg.MaxRetries-1 {
			log.Warn("zeebe connection failed, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return nil, fmt.Errorf("zeebe connection failed after %d attempts: %w", cfg.MaxRetries, err)
}
