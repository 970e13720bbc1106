package signal

import (
	"context"

	"github.com/AzielCF/az-publisher/infrastructure/valkey"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
)

const DefaultChannel = "scheduler:signal"

// Valkey publishes wake-ups on a prefixed pub/sub channel shared by every worker.
type Valkey struct {
	client  *valkey.Client
	channel string
}

func NewValkey(client *valkey.Client) *Valkey {
	return &Valkey{client: client, channel: DefaultChannel}
}

func (v *Valkey) Publish(ctx context.Context) error {
	return v.client.Publish(ctx, v.channel, "wake")
}

// Subscribe listens in the background until ctx is cancelled.
func (v *Valkey) Subscribe(ctx context.Context, onWake func()) error {
	inner := v.client.Inner()
	channel := v.client.Key(v.channel)
	logrus.Infof("[SIGNAL] watching valkey channel %s", channel)

	go func() {
		err := inner.Receive(ctx, inner.B().Subscribe().Channel(channel).Build(), func(valkeylib.PubSubMessage) {
			logrus.Debug("[SIGNAL] wake-up received from valkey")
			onWake()
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("[SIGNAL] valkey subscription ended")
		}
	}()
	return nil
}
