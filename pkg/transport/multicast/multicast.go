package multicast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"

	"tarun-kavipurapu/lanfetch/pkg/logger"
	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

// ErrNoInterface is returned when the group could not be joined anywhere.
var ErrNoInterface = errors.New("no multicast-capable interface joined the group")

// Options configures the multicast socket.
type Options struct {
	Group string
	Port  uint16
	// Interfaces restricts which interfaces join the group; nil means all
	// that are up and multicast-capable.
	Interfaces []net.Interface
	TTL        int
	// Loopback delivers our own datagrams back to local listeners.
	Loopback bool
}

// DefaultOptions targets the LocalSend group.
func DefaultOptions() Options {
	return Options{
		Group:    protocol.MulticastGroup,
		Port:     protocol.DefaultPort,
		TTL:      4,
		Loopback: true,
	}
}

// Transport implements transport.Transport over a UDP multicast group.
type Transport struct {
	opts   Options
	group  *net.UDPAddr
	conn   net.PacketConn
	pc     *ipv4.PacketConn
	joined []net.Interface
	rpcCh  chan protocol.RPC
	closed atomic.Bool
	wg     sync.WaitGroup
	once   sync.Once
}

// Listen binds the group port, joins the group and starts the read loop.
// Failure here is fatal for a discovery session.
func Listen(opts Options) (*Transport, error) {
	group := net.ParseIP(opts.Group).To4()
	if group == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("invalid multicast group %q", opts.Group)
	}

	lc := net.ListenConfig{Control: reuseAddr}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp port %d: %w", opts.Port, err)
	}

	t := &Transport{
		opts:  opts,
		group: &net.UDPAddr{IP: group, Port: int(opts.Port)},
		conn:  conn,
		pc:    ipv4.NewPacketConn(conn),
		rpcCh: make(chan protocol.RPC, 1024),
	}

	if err := t.join(); err != nil {
		conn.Close()
		return nil, err
	}

	if opts.TTL > 0 {
		if err := t.pc.SetMulticastTTL(opts.TTL); err != nil {
			logger.Sugar.Warnf("[Multicast] set ttl failed: ttl=%d err=%v", opts.TTL, err)
		}
	}
	if err := t.pc.SetMulticastLoopback(opts.Loopback); err != nil {
		logger.Sugar.Warnf("[Multicast] set loopback failed: err=%v", err)
	}

	t.wg.Add(1)
	go t.readLoop()
	return t, nil
}

func (t *Transport) join() error {
	ifaces := t.opts.Interfaces
	if ifaces == nil {
		var err error
		ifaces, err = candidateInterfaces()
		if err != nil {
			return fmt.Errorf("failed to list interfaces: %w", err)
		}
	}

	var errs error
	for i := range ifaces {
		iface := ifaces[i]
		if err := t.pc.JoinGroup(&iface, t.group); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", iface.Name, err))
			continue
		}
		t.joined = append(t.joined, iface)
		logger.Sugar.Debugf("[Multicast] joined group: group=%s iface=%s", t.group, iface.Name)
	}

	if len(t.joined) == 0 {
		if errs != nil {
			return fmt.Errorf("%w: %v", ErrNoInterface, errs)
		}
		return ErrNoInterface
	}
	return nil
}

// candidateInterfaces lists interfaces that are up, multicast-capable and
// carry an IPv4 address.
func candidateInterfaces() ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				out = append(out, iface)
				break
			}
		}
	}
	return out, nil
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	defer close(t.rpcCh)

	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, _, src, err := t.pc.ReadFrom(buf)
		if err != nil {
			if t.closed.Load() {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			logger.Sugar.Errorf("[Multicast] read error: addr=%s err=%v", t.Addr(), err)
			return
		}

		from := src.String()
		if udp, ok := src.(*net.UDPAddr); ok {
			from = udp.IP.String()
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case t.rpcCh <- protocol.RPC{From: from, Payload: payload}:
		default:
			logger.Sugar.Warnf("[Multicast] receive queue full, dropping datagram from %s", from)
		}
	}
}

// Send writes payload to the group.
func (t *Transport) Send(payload []byte) error {
	if t.closed.Load() {
		return net.ErrClosed
	}
	if _, err := t.pc.WriteTo(payload, nil, t.group); err != nil {
		return fmt.Errorf("failed to send to %s: %w", t.group, err)
	}
	return nil
}

func (t *Transport) Consume() <-chan protocol.RPC {
	return t.rpcCh
}

// Close leaves the group, releases the socket and waits for the read loop.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		t.closed.Store(true)
		for i := range t.joined {
			iface := t.joined[i]
			err = multierr.Append(err, t.pc.LeaveGroup(&iface, t.group))
		}
		err = multierr.Append(err, t.conn.Close())
		t.wg.Wait()
	})
	return err
}

func (t *Transport) Addr() string {
	return t.conn.LocalAddr().String()
}

// Joined returns the names of interfaces that joined the group.
func (t *Transport) Joined() []string {
	names := make([]string, 0, len(t.joined))
	for _, iface := range t.joined {
		names = append(names, iface.Name)
	}
	return names
}
