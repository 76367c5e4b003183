package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tarun-kavipurapu/lanfetch/pkg/transport"
	"tarun-kavipurapu/lanfetch/pkg/transport/multicast"
)

// ErrTransport means the multicast socket could not be bound or joined.
var ErrTransport = errors.New("discovery transport unavailable")

// Discover joins the LocalSend multicast group, runs a session for timeout
// (or until ctx ends) and returns the registry contents at that moment.
func Discover(ctx context.Context, opts Options, timeout time.Duration) (Snapshot, error) {
	mopts := opts.Multicast
	if mopts.Group == "" {
		mopts = multicast.DefaultOptions()
	}

	tr, err := multicast.Listen(mopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return Run(ctx, tr, opts, timeout)
}

// Run drives a session on an already-open transport. The transport is
// closed before Run returns.
func Run(ctx context.Context, tr transport.Transport, opts Options, timeout time.Duration) (Snapshot, error) {
	s, err := NewSession(opts, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.Start(ctx)
	<-ctx.Done()
	return s.Stop(), nil
}
