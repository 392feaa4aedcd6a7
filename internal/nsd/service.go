package nsd

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

const sweepInterval = 10 * time.Second

// Service advertises this hub over mDNS and tracks peers of the same type.
type Service struct {
	cfg      Config
	listener Listener
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	peers   map[string]Peer
	server  *zeroconf.Server
	port    int
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewService creates a Service. listener may be nil.
func NewService(cfg Config, listener Listener, logger zerolog.Logger) *Service {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		listener: listener,
		logger:   logger.With().Str("component", "nsd").Logger(),
		now:      time.Now,
		peers:    make(map[string]Peer),
	}
}

// Start registers the service and begins browsing until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	port := s.cfg.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return fmt.Errorf("allocate port: %w", err)
		}
		port = p
	}

	server, err := zeroconf.Register(s.cfg.ServiceName, s.cfg.ServiceType, s.cfg.Domain, port, s.cfg.Text, nil)
	if err != nil {
		return fmt.Errorf("register %s: %w", s.cfg.ServiceType, err)
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		server.Shutdown()
		return fmt.Errorf("create resolver: %w", err)
	}

	browseCtx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(browseCtx, s.cfg.ServiceType, s.cfg.Domain, entries); err != nil {
		cancel()
		server.Shutdown()
		return fmt.Errorf("browse %s: %w", s.cfg.ServiceType, err)
	}

	s.server = server
	s.port = port
	s.cancel = cancel
	s.started = true

	s.wg.Add(2)
	go s.consume(browseCtx, entries)
	go s.sweepLoop(browseCtx)

	s.logger.Info().
		Str("name", s.cfg.ServiceName).
		Str("type", s.cfg.ServiceType).
		Int("port", port).
		Msg("service registered")
	return nil
}

// Stop unregisters the service and stops browsing.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	server := s.server
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	server.Shutdown()
	s.logger.Info().Msg("service unregistered")
}

// Port returns the advertised port, zero before Start.
func (s *Service) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Peers returns the live peers sorted by instance name.
func (s *Service) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func (s *Service) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				if ctx.Err() == nil {
					s.listener.OnError(fmt.Errorf("browse %s ended", s.cfg.ServiceType))
				}
				return
			}
			s.handleEntry(entry)
		}
	}
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expire()
		}
	}
}

// handleEntry applies one browse result to the peer table.
func (s *Service) handleEntry(entry *zeroconf.ServiceEntry) {
	if entry == nil {
		return
	}
	if entry.Service != s.cfg.ServiceType {
		s.logger.Warn().Str("type", entry.Service).Str("instance", entry.Instance).Msg("unknown service type")
		return
	}
	if entry.Instance == s.cfg.ServiceName {
		s.logger.Debug().Str("instance", entry.Instance).Msg("same machine")
		return
	}

	now := s.now()
	peer := Peer{
		Instance:  entry.Instance,
		Service:   entry.Service,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addresses(entry),
		Text:      entry.Text,
		SeenAt:    now,
		ExpiresAt: now.Add(time.Duration(entry.TTL) * time.Second),
	}

	s.mu.Lock()
	_, known := s.peers[peer.Instance]
	if entry.TTL == 0 {
		delete(s.peers, peer.Instance)
	} else {
		s.peers[peer.Instance] = peer
	}
	s.mu.Unlock()

	switch {
	case entry.TTL == 0 && known:
		s.logger.Info().Str("instance", peer.Instance).Msg("service lost")
		s.listener.OnLost(peer)
	case entry.TTL > 0 && !known:
		s.logger.Info().Str("instance", peer.Instance).Str("host", peer.Host).Int("port", peer.Port).Msg("service found")
		s.listener.OnFound(peer)
	}
}

// expire drops peers whose TTL elapsed without a refresh.
func (s *Service) expire() {
	now := s.now()
	var lost []Peer

	s.mu.Lock()
	for name, p := range s.peers {
		if !now.Before(p.ExpiresAt) {
			lost = append(lost, p)
			delete(s.peers, name)
		}
	}
	s.mu.Unlock()

	for _, p := range lost {
		s.logger.Info().Str("instance", p.Instance).Msg("service lost")
		s.listener.OnLost(p)
	}
}

func addresses(entry *zeroconf.ServiceEntry) []string {
	out := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		out = append(out, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		out = append(out, ip.String())
	}
	return out
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
