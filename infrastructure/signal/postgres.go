package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DefaultPgChannel   = "az_publisher_scheduler"
	listenerMinBackoff = 10 * time.Second
	listenerMaxBackoff = time.Minute
	listenerPing       = 90 * time.Second
)

// Postgres sends wake-ups with pg_notify and receives them through a lib/pq listener.
type Postgres struct {
	db      *gorm.DB
	dsn     string
	channel string
}

func NewPostgres(db *gorm.DB, dsn string) *Postgres {
	return &Postgres{db: db, dsn: dsn, channel: DefaultPgChannel}
}

func (p *Postgres) Publish(ctx context.Context) error {
	return p.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", p.channel, "wake").Error
}

func (p *Postgres) Subscribe(ctx context.Context, onWake func()) error {
	listener := pq.NewListener(p.dsn, listenerMinBackoff, listenerMaxBackoff, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.WithError(err).Warnf("[SIGNAL] postgres listener event %d", ev)
		}
	})
	if err := listener.Listen(p.channel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("listen %s: %w", p.channel, err)
	}
	logrus.Infof("[SIGNAL] listening on postgres channel %s", p.channel)

	go func() {
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// A nil notification follows a reconnect; a wake-up may have been missed.
				if n == nil {
					logrus.Debug("[SIGNAL] postgres listener reconnected")
				}
				onWake()
			case <-time.After(listenerPing):
				if err := listener.Ping(); err != nil {
					logrus.WithError(err).Warn("[SIGNAL] postgres listener ping failed")
				}
			}
		}
	}()
	return nil
}
