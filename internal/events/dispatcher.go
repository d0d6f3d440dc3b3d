package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/partup/partup/internal/models"
	"github.com/partup/partup/internal/signalbus"
	"github.com/partup/partup/internal/store"
	"github.com/partup/partup/internal/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/partup/partup/internal/events")

var (
	dispatchedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partup_events_dispatched_total",
		Help: "Outbox events handed to sinks, by event name and result.",
	}, []string{"event", "result"})
	sinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partup_event_sink_failures_total",
		Help: "Event deliveries a sink failed, by sink.",
	}, []string{"sink"})
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 100
)

// Dispatcher drains the outbox whenever the events signal fires and on a
// fixed interval. An event is marked delivered once every sink accepted it;
// otherwise it stays in the outbox for the next pass.
type Dispatcher struct {
	logger    *zap.SugaredLogger
	store     store.Store
	bus       signalbus.SignalBus
	sinks     []Sink
	interval  time.Duration
	batchSize int
	now       func() time.Time
	mu        sync.Mutex
}

func NewDispatcher(logger *zap.SugaredLogger, s store.Store, bus signalbus.SignalBus, interval time.Duration, sinks ...Sink) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dispatcher{
		logger:    logger,
		store:     s,
		bus:       bus,
		sinks:     sinks,
		interval:  interval,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
}

// Start runs the dispatch loop until ctx is done.
func (d *Dispatcher) Start(ctx context.Context, wg *sync.WaitGroup) {
	sub := d.bus.Subscribe(signalbus.SignalEvents)
	util.GoWithWaitGroup(wg, func() {
		defer sub.Close()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		d.drainAndLog(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Signal():
			case <-ticker.C:
			}
			d.drainAndLog(ctx)
		}
	})
}

func (d *Dispatcher) drainAndLog(ctx context.Context) {
	if _, err := d.Drain(ctx); err != nil && ctx.Err() == nil {
		d.logger.Warnw("draining outbox failed", "error", err)
	}
}

// Drain delivers undelivered events until the outbox is empty or only
// failing events remain. It returns the number of events delivered.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, span := tracer.Start(ctx, "Drain")
	defer span.End()

	delivered := 0
	for {
		batch, err := d.store.UndeliveredEvents(ctx, d.batchSize)
		if err != nil {
			return delivered, fmt.Errorf("loading undelivered events: %w", err)
		}
		progressed := false
		for _, e := range batch {
			ok, err := d.dispatch(ctx, e)
			if err != nil {
				return delivered, err
			}
			if ok {
				delivered++
				progressed = true
			}
		}
		if len(batch) < d.batchSize || !progressed {
			return delivered, nil
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e models.Event) (bool, error) {
	logger := util.WithTrace(ctx, d.logger)

	var failures []string
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, e); err != nil {
			sinkFailures.WithLabelValues(sink.Name()).Inc()
			logger.Warnw("sink failed to deliver event", "sink", sink.Name(), "event", e.ID, "name", e.Name, "error", err)
			failures = append(failures, sink.Name()+": "+err.Error())
		}
	}

	if len(failures) > 0 {
		dispatchedEvents.WithLabelValues(e.Name, "failed").Inc()
		if err := d.store.MarkEventFailed(ctx, e.ID, strings.Join(failures, "; ")); err != nil {
			return false, fmt.Errorf("marking event %s failed: %w", e.ID, err)
		}
		return false, nil
	}

	dispatchedEvents.WithLabelValues(e.Name, "delivered").Inc()
	if err := d.store.MarkEventDelivered(ctx, e.ID, d.now()); err != nil {
		return false, fmt.Errorf("marking event %s delivered: %w", e.ID, err)
	}
	return true, nil
}
