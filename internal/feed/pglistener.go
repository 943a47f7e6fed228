package feed

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// PGListener relays Postgres NOTIFY payloads from other instances into a Publisher.
type PGListener struct {
	dsn   string
	pub   Publisher
	log   logrus.FieldLogger
	retry time.Duration
}

// NewPGListener creates a listener for PGChannel on the database at dsn.
func NewPGListener(dsn string, pub Publisher, log logrus.FieldLogger) *PGListener {
	return &PGListener{
		dsn:   dsn,
		pub:   pub,
		log:   log.WithField("component", "pg-listener"),
		retry: 5 * time.Second,
	}
}

// Run listens until ctx is cancelled, reconnecting after failures.
func (l *PGListener) Run(ctx context.Context) {
	l.log.Info("starting change listener")
	for {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			l.log.WithError(err).Warn("change listener disconnected; retrying")
		}

		select {
		case <-ctx.Done():
			l.log.Info("change listener shutting down")
			return
		case <-time.After(l.retry):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{PGChannel}.Sanitize()); err != nil {
		return err
	}

	// Anything may have changed while we were disconnected.
	l.pub.Publish(MachineChanged(""))
	l.pub.Publish(UsageChanged(""))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := ParseEvent(n.Payload)
		if err != nil {
			l.log.WithError(err).Warn("ignoring change notification")
			continue
		}
		l.pub.Publish(ev)
	}
}
