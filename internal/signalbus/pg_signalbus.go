package signalbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/partup/partup/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPgChannel is the postgres NOTIFY channel signals travel on.
const DefaultPgChannel = "partup_signals"

var _ SignalBus = &PgSignalBus{}

// PgSignalBus fans signals out to every api server process sharing a
// PostgreSQL database, using LISTEN/NOTIFY. Subscriptions stay local.
type PgSignalBus struct {
	db         *gorm.DB
	local      SignalBus
	connectDSN string
	channel    string
	logger     *zap.SugaredLogger
}

func NewPgSignalBus(local SignalBus, db *gorm.DB, connectDSN string, logger *zap.SugaredLogger) *PgSignalBus {
	return &PgSignalBus{
		db:         db,
		local:      local,
		connectDSN: connectDSN,
		channel:    DefaultPgChannel,
		logger:     logger,
	}
}

// Notify publishes the signal through the database. It reaches local
// subscribers when postgres echoes it back to the listener.
func (pgsb *PgSignalBus) Notify(name string) {
	pgsb.publish(name)
}

func (pgsb *PgSignalBus) NotifyAll() {
	pgsb.publish("*")
}

func (pgsb *PgSignalBus) publish(payload string) {
	if err := pgsb.db.Exec("SELECT pg_notify(?, ?)", pgsb.channel, payload).Error; err != nil {
		pgsb.logger.Warnw("pg_notify failed, signaling locally", "signal", payload, "error", err)
		if payload == "*" {
			pgsb.local.NotifyAll()
		} else {
			pgsb.local.Notify(payload)
		}
	}
}

func (pgsb *PgSignalBus) Subscribe(name string) *Subscription {
	return pgsb.local.Subscribe(name)
}

// Start listens for notifications until ctx is done.
func (pgsb *PgSignalBus) Start(ctx context.Context, wg *sync.WaitGroup) {
	util.GoWithWaitGroup(wg, func() {
		listener := pq.NewListener(pgsb.connectDSN, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				pgsb.logger.Infow("pq listener error", "error", err)
			}
			if ev == pq.ListenerEventReconnected {
				// signals may have been missed while disconnected
				pgsb.local.NotifyAll()
			}
		})
		defer util.IgnoreError(listener.Close)

		if err := listener.Listen(pgsb.channel); err != nil {
			pgsb.logger.Errorw("could not listen for signals", "channel", pgsb.channel, "error", err)
			return
		}
		for {
			exit, err := pgsb.waitForNotification(ctx, listener)
			if exit {
				return
			}
			if err != nil {
				pgsb.logger.Warnw("error waiting for signal", "error", err)
				time.Sleep(time.Second)
			}
		}
	})
}

func (pgsb *PgSignalBus) waitForNotification(ctx context.Context, l *pq.Listener) (exit bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case n := <-l.Notify:
			if n == nil {
				return false, errors.New("postgres listener channel closed")
			}
			pgsb.logger.Debugw("received signal", "channel", n.Channel, "signal", n.Extra)
			if n.Extra == "*" {
				pgsb.local.NotifyAll()
			} else {
				pgsb.local.Notify(n.Extra)
			}
			return false, nil
		case <-time.After(90 * time.Second):
			pgsb.logger.Debug("no signals for 90 seconds, checking connection")
			if err := l.Ping(); err != nil {
				return false, err
			}
		}
	}
}
