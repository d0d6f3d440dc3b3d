// Package signalbus delivers "something changed" signals to in-process
// subscribers. Signals carry no payload; a subscriber that is already
// signaled absorbs further notifications until it reads the channel.
package signalbus

import (
	"sync"
)

// Well known signal names.
const (
	// SignalEvents fires after a transaction that wrote outbox events commits.
	SignalEvents = "events"
)

type SignalBus interface {
	// Notify wakes every subscription to the named signal.
	Notify(name string)
	// NotifyAll wakes every subscription.
	NotifyAll()
	// Subscribe creates a subscription to the named signal.
	Subscribe(name string) *Subscription
}

var _ SignalBus = &signalBus{}

type signalBus struct {
	mu      sync.RWMutex
	signals map[string][]*Subscription
}

func NewSignalBus() SignalBus {
	return &signalBus{
		signals: make(map[string][]*Subscription),
	}
}

func (sb *signalBus) Notify(name string) {
	sb.mu.RLock()
	subs := append([]*Subscription(nil), sb.signals[name]...)
	sb.mu.RUnlock()
	wake(subs)
}

func (sb *signalBus) NotifyAll() {
	var subs []*Subscription
	sb.mu.RLock()
	for _, s := range sb.signals {
		subs = append(subs, s...)
	}
	sb.mu.RUnlock()
	wake(subs)
}

func wake(subs []*Subscription) {
	for _, sub := range subs {
		select {
		case sub.c <- struct{}{}:
		default:
		}
	}
}

func (sb *signalBus) Subscribe(name string) *Subscription {
	sub := &Subscription{
		sb:   sb,
		name: name,
		c:    make(chan struct{}, 1),
	}
	sb.mu.Lock()
	sb.signals[name] = append(sb.signals[name], sub)
	sb.mu.Unlock()
	return sub
}

func (sb *signalBus) unsubscribe(sub *Subscription) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	subs := sb.signals[sub.name]
	for i, s := range subs {
		if s != sub {
			continue
		}
		last := len(subs) - 1
		subs[i] = subs[last]
		subs = subs[:last]
		break
	}
	if len(subs) == 0 {
		delete(sb.signals, sub.name)
	} else {
		sb.signals[sub.name] = subs
	}
}

type Subscription struct {
	sb        *signalBus
	name      string
	closeOnce sync.Once
	c         chan struct{}
}

// Signal returns a channel that receives a value when the subscription is
// notified. Use it in select statements:
//
//	sub := bus.Subscribe(signalbus.SignalEvents)
//	defer sub.Close()
//	for {
//		select {
//		case <-ctx.Done():
//			return
//		case <-sub.Signal():
//			drain()
//		}
//	}
func (sub *Subscription) Signal() <-chan struct{} {
	return sub.c
}

// IsSignaled reports, and consumes, a pending notification.
func (sub *Subscription) IsSignaled() bool {
	select {
	case <-sub.c:
		return true
	default:
		return false
	}
}

func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		sub.sb.unsubscribe(sub)
	})
}
