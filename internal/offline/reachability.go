package offline

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// NetworkReachability is the injected capability a Manager uses to learn
// about connectivity transitions, replacing the source's dependency on a
// process-wide online/offline event source so the core stays testable
// without a host event pump.
type NetworkReachability interface {
	// IsOnline reports the current reachability flag at the moment of the call.
	IsOnline() bool
	// Subscribe registers fn to be called on every online/offline
	// transition and returns an unsubscribe function.
	Subscribe(fn func(online bool)) func()
}

// HTTPPoller is a NetworkReachability that periodically probes a URL
// (typically a lightweight health endpoint on the collaboration server)
// and treats a successful response as "online".
type HTTPPoller struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	nextID    int

	client   *http.Client
	url      string
	cancel   context.CancelFunc
}

// NewHTTPPoller starts polling url every interval and returns a poller
// seeded with one synchronous probe so IsOnline is accurate immediately.
func NewHTTPPoller(url string, interval time.Duration) *HTTPPoller {
	p := &HTTPPoller{
		listeners: make(map[int]func(bool)),
		client:    &http.Client{Timeout: 3 * time.Second},
		url:       url,
	}

	p.probe()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go p.loop(ctx, interval)

	return p
}

func (p *HTTPPoller) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe()
		}
	}
}

func (p *HTTPPoller) probe() {
	resp, err := p.client.Get(p.url)
	online := err == nil
	if resp != nil {
		resp.Body.Close()
	}
	p.setOnline(online)
}

func (p *HTTPPoller) setOnline(online bool) {
	p.mu.Lock()
	changed := p.online != online
	p.online = online
	var listeners []func(bool)
	if changed {
		for _, fn := range p.listeners {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

// IsOnline reports the most recently observed reachability state.
func (p *HTTPPoller) IsOnline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe registers fn for future transitions.
func (p *HTTPPoller) Subscribe(fn func(online bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Stop halts the background polling loop.
func (p *HTTPPoller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// StaticReachability is a fixed NetworkReachability used by tests; Set
// drives transitions manually.
type StaticReachability struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func(bool)
	nextID    int
}

// NewStaticReachability constructs a StaticReachability whose initial
// state is the given online flag.
func NewStaticReachability(online bool) *StaticReachability {
	return &StaticReachability{online: online, listeners: make(map[int]func(bool))}
}

func (s *StaticReachability) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *StaticReachability) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Set transitions reachability and notifies subscribers, synchronously,
// regardless of whether the value actually changed — tests rely on this
// to exercise both "actual transition" and "redundant call" cases without
// duplicating Manager's own dedup logic.
func (s *StaticReachability) Set(online bool) {
	s.mu.Lock()
	s.online = online
	var listeners []func(bool)
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}
