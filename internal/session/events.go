package session

import "github.com/google/logger"

// EventKind tells subscribers what changed.
type EventKind string

const (
	EventStateChanged   EventKind = "state"
	EventAccountChanged EventKind = "account"
	EventNetworkChanged EventKind = "network"
	EventBalanceChanged EventKind = "balance"
	EventError          EventKind = "error"
)

// Event is one discrete session change.
type Event struct {
	Kind     EventKind
	From     State
	To       State
	Snapshot Snapshot
}

const subscriberBuffer = 16

// Subscribe returns a channel of session events and a cancel function that
// closes it.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publish must be called with s.mu held so a concurrent cancel cannot close
// a channel mid-send.
func (s *Session) publish(ev Event) {
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			logger.Warningf("session subscriber %d is slow, dropping %s event", id, ev.Kind)
		}
	}
}
