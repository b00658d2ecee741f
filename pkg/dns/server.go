package dns

import (
	"context"
	"fmt"
	"sync"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/log"
)

const (
	// DefaultListenAddr follows the Docker embedded-DNS convention so
	// container resolv.conf files can point at a well-known address.
	DefaultListenAddr = "127.0.0.11:53"

	// DefaultZone is the search suffix for controller-managed names.
	DefaultZone = "roost"

	// DefaultUpstream answers everything that is not ours.
	DefaultUpstream = "8.8.8.8:53"
)

// Config holds DNS server configuration. Zero values fall back to the
// defaults above.
type Config struct {
	ListenAddr string
	Zone       string
	Upstream   []string
}

// Server serves unit and workload A records over UDP and forwards
// everything else upstream.
type Server struct {
	resolver   *Resolver
	listenAddr string
	upstream   []string
	logger     zerolog.Logger

	mu        sync.Mutex
	dnsServer *dns.Server
	running   bool
}

// NewServer builds a DNS server answering from the given source.
func NewServer(source Source, config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}
	if config.Zone == "" {
		config.Zone = DefaultZone
	}
	if len(config.Upstream) == 0 {
		config.Upstream = []string{DefaultUpstream}
	}

	return &Server{
		resolver:   NewResolver(source, config.Zone),
		listenAddr: config.ListenAddr,
		upstream:   config.Upstream,
		logger:     log.WithComponent("dns"),
	}
}

// Start binds the UDP listener and serves until Stop. It returns once
// the listener is up, or with the bind error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("dns server already running")
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleQuery)

	started := make(chan struct{})
	s.dnsServer = &dns.Server{
		Addr:              s.listenAddr,
		Net:               "udp",
		Handler:           mux,
		NotifyStartedFunc: func() { close(started) },
	}
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.dnsServer.ListenAndServe()
	}()

	select {
	case <-started:
		s.logger.Info().Str("address", s.listenAddr).Msg("DNS server started")
		return nil
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("dns listen on %s: %w", s.listenAddr, err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop shuts the listener down. Safe to call when not running.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if err := s.dnsServer.Shutdown(); err != nil {
		return fmt.Errorf("dns shutdown: %w", err)
	}
	s.running = false
	s.logger.Info().Msg("DNS server stopped")
	return nil
}

// IsRunning reports whether the listener is up.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// handleQuery resolves locally first; zone-suffixed misses are answered
// authoritatively (NXDOMAIN or an empty answer), everything else is
// forwarded upstream.
func (s *Server) handleQuery(w dns.ResponseWriter, req *dns.Msg) {
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = true

	if len(req.Question) == 0 {
		s.write(w, msg)
		return
	}
	q := req.Question[0]

	if q.Qtype == dns.TypeA {
		answers, err := s.resolver.Resolve(q.Name)
		if err == nil {
			msg.Answer = answers
			s.write(w, msg)
			return
		}
		if s.resolver.inZone(q.Name) {
			s.logger.Debug().Str("query", q.Name).Msg("No such name in zone")
			msg.Rcode = dns.RcodeNameError
			s.write(w, msg)
			return
		}
	} else if s.resolver.inZone(q.Name) {
		// Our names only carry A records; answer empty rather than
		// leaking internal names upstream.
		s.write(w, msg)
		return
	}

	s.forward(w, req)
}

// forward relays the query to the upstream servers in order, returning
// the first response. SERVFAIL when none answer.
func (s *Server) forward(w dns.ResponseWriter, req *dns.Msg) {
	client := &dns.Client{Net: "udp"}

	for _, upstream := range s.upstream {
		resp, _, err := client.Exchange(req, upstream)
		if err != nil {
			s.logger.Debug().
				Err(err).
				Str("upstream", upstream).
				Msg("Upstream exchange failed")
			continue
		}
		s.write(w, resp)
		return
	}

	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Rcode = dns.RcodeServerFailure
	s.write(w, msg)
}

func (s *Server) write(w dns.ResponseWriter, msg *dns.Msg) {
	if err := w.WriteMsg(msg); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write DNS response")
	}
}
