package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tarun-kavipurapu/lanfetch/pkg/logger"
	"tarun-kavipurapu/lanfetch/pkg/monitor"
	"tarun-kavipurapu/lanfetch/pkg/protocol"
	"tarun-kavipurapu/lanfetch/pkg/transport"
	"tarun-kavipurapu/lanfetch/pkg/transport/multicast"
)

// PeerEvent is emitted for every committed registry change.
type PeerEvent struct {
	Kind UpsertResult
	Peer PeerRecord
}

// Options configures a discovery session.
type Options struct {
	Self protocol.DeviceInfo
	// Port and Protocol are what we declare for our own API.
	Port     uint16
	Protocol protocol.Protocol
	Download bool

	AnnounceInterval time.Duration
	// Silent disables both announcing and responding.
	Silent bool
	// Respond answers announcements with a multicast response.
	Respond bool

	// OnPeer is called from the listener goroutine; it must not block for long.
	OnPeer  func(PeerEvent)
	Metrics *monitor.Metrics

	// Multicast is only used by Discover; the zero value selects the LocalSend group.
	Multicast multicast.Options
}

// Session owns the announcer and listener for one bounded discovery run.
type Session struct {
	opts     Options
	tr       transport.Transport
	registry *Registry
	announce []byte
	response []byte

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	final     Snapshot
}

// NewSession prepares a session on tr. The session takes ownership of tr
// and closes it on Stop.
func NewSession(opts Options, tr transport.Transport) (*Session, error) {
	if opts.Self.Fingerprint == "" {
		return nil, fmt.Errorf("local device has no fingerprint")
	}
	if opts.AnnounceInterval <= 0 {
		opts.AnnounceInterval = 2 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = protocol.DefaultPort
	}
	if opts.Protocol == "" {
		opts.Protocol = protocol.ProtocolHTTP
	}
	if opts.Metrics == nil {
		opts.Metrics = monitor.Global
	}

	announce, err := protocol.EncodeMulticast(protocol.NewAnnounce(opts.Self, opts.Port, opts.Protocol, opts.Download))
	if err != nil {
		return nil, fmt.Errorf("failed to encode announce: %w", err)
	}
	response, err := protocol.EncodeMulticast(protocol.NewResponse(opts.Self, opts.Port, opts.Protocol, opts.Download))
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}

	return &Session{
		opts:     opts,
		tr:       tr,
		registry: NewRegistry(opts.Self.Fingerprint),
		announce: announce,
		response: response,
	}, nil
}

// Registry exposes the live registry for mid-session inspection.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Start launches the listener and, unless silent, the announcer.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)

		logger.Sugar.Infof("[Discovery] session started: self=%s transport=%s silent=%v interval=%s",
			s.opts.Self, s.tr.Addr(), s.opts.Silent, s.opts.AnnounceInterval)

		s.wg.Add(1)
		go s.listen(ctx)

		if !s.opts.Silent {
			s.wg.Add(1)
			go s.announceLoop(ctx)
		}
	})
}

// Stop cancels both loops, releases the transport, waits for the loops to
// exit and returns the final registry contents. It is safe to call more than once.
func (s *Session) Stop() Snapshot {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if err := s.tr.Close(); err != nil {
			logger.Sugar.Warnf("[Discovery] transport close failed: %v", err)
		}
		s.wg.Wait()
		s.final = s.registry.Snapshot()
		logger.Sugar.Infof("[Discovery] session stopped: peers=%d", len(s.final))
	})
	return s.final
}

// announceLoop sends our announcement every interval. Send failures are
// logged and retried after the full interval.
func (s *Session) announceLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.tr.Send(s.announce); err != nil {
			logger.Sugar.Warnf("[Discovery] announce failed: err=%v", err)
		} else {
			s.opts.Metrics.RecordSent()
		}
		timer.Reset(s.opts.AnnounceInterval)
	}
}

func (s *Session) listen(ctx context.Context) {
	defer s.wg.Done()

	rpcs := s.tr.Consume()
	for {
		select {
		case <-ctx.Done():
			return
		case rpc, ok := <-rpcs:
			if !ok {
				return
			}
			s.handle(rpc)
		}
	}
}

func (s *Session) handle(rpc protocol.RPC) {
	msg, err := protocol.DecodeMulticast(rpc.Payload)
	if err != nil {
		s.opts.Metrics.RecordDrop()
		logger.Sugar.Debugf("[Discovery] dropped datagram: from=%s err=%v", rpc.From, err)
		return
	}

	c := msg.Common()
	if c.Device.Fingerprint == s.opts.Self.Fingerprint {
		return
	}

	rec, result := s.registry.Upsert(PeerRecord{
		Device:   c.Device,
		Version:  c.Version,
		Address:  rpc.From,
		Port:     c.Port,
		Protocol: c.Protocol,
		Download: c.PrefersDownload(),
	})

	switch result {
	case Added:
		s.opts.Metrics.RecordPeer()
		logger.Sugar.Infof("[Discovery] new peer: %s fingerprint=%s", rec, rec.Device.Fingerprint)
	case Updated:
		logger.Sugar.Debugf("[Discovery] refreshed peer: %s fingerprint=%s", rec, rec.Device.Fingerprint)
	case Ignored:
		return
	}

	if s.opts.OnPeer != nil {
		s.opts.OnPeer(PeerEvent{Kind: result, Peer: rec})
	}

	if msg.IsAnnounce() && !s.opts.Silent && s.opts.Respond {
		if err := s.tr.Send(s.response); err != nil {
			logger.Sugar.Warnf("[Discovery] response to %s failed: err=%v", rpc.From, err)
		} else {
			s.opts.Metrics.RecordSent()
		}
	}
}
