package infrastructure

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func connectNats(url string, log *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("rewardgate"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}
