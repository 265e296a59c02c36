package repository

import "sync"

// Notifier fans change signals out to per-key subscribers within one process.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[chan struct{}]struct{})}
}

func (n *Notifier) Subscribe(key string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if _, ok := n.subs[key]; !ok {
		n.subs[key] = make(map[chan struct{}]struct{})
	}
	n.subs[key][ch] = struct{}{}
	n.mu.Unlock()

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if subs, ok := n.subs[key]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(n.subs, key)
			}
		}
	}

	return ch, unsubscribe
}

func (n *Notifier) Notify(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
}
