package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"tarun-kavipurapu/lanfetch/pkg/discovery"
	"tarun-kavipurapu/lanfetch/pkg/logger"
	"tarun-kavipurapu/lanfetch/pkg/monitor"

	"github.com/spf13/cobra"
)

var (
	discoverTimeout  int
	announceInterval int
	discoverSilent   bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List LocalSend devices on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyDiscoverFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		done := startMetrics(cmd.Context())
		defer done()

		snap, err := runDiscovery(cmd.Context(), out)
		if err != nil {
			return err
		}
		printPeers(out, snap)
		return nil
	},
}

// applyDiscoverFlags copies explicitly set flags over the loaded config.
func applyDiscoverFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		cfg.Discovery.TimeoutSeconds = discoverTimeout
	}
	if flags.Changed("announce-interval") {
		cfg.Discovery.AnnounceIntervalSeconds = announceInterval
	}
	if flags.Changed("silent") {
		cfg.Discovery.Silent = discoverSilent
	}
}

func discoveryOptions(out io.Writer) discovery.Options {
	self := cfg.DeviceInfo()
	logger.Sugar.Infof("[Discovery] Local device: %s", self)
	return discovery.Options{
		Self:             self,
		Port:             uint16(cfg.Port),
		Protocol:         cfg.ServeProtocol(),
		AnnounceInterval: cfg.AnnounceInterval(),
		Silent:           cfg.Discovery.Silent,
		Respond:          cfg.Discovery.Respond,
		Metrics:          monitor.Global,
		OnPeer: func(ev discovery.PeerEvent) {
			if ev.Kind == discovery.Added {
				fmt.Fprintf(out, "Found %s\n", ev.Peer)
			}
		},
	}
}

// runDiscovery runs one bounded discovery session, printing peers as they appear.
func runDiscovery(ctx context.Context, out io.Writer) (discovery.Snapshot, error) {
	timeout := cfg.DiscoveryTimeout()
	fmt.Fprintf(out, "Scanning for %s...\n", timeout)
	return discovery.Discover(ctx, discoveryOptions(out), timeout)
}

func printPeers(out io.Writer, snap discovery.Snapshot) {
	peers := snap.Sorted()
	if len(peers) == 0 {
		fmt.Fprintln(out, "No devices found.")
		return
	}

	fmt.Fprintf(out, "\n%d device(s) found:\n", len(peers))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIAS\tTYPE\tMODEL\tADDRESS\tFINGERPRINT\tLAST SEEN")
	for _, p := range peers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Device.Alias,
			p.Device.DeviceType,
			p.Device.DeviceModel,
			p.BaseURL(),
			p.Device.Fingerprint,
			p.LastSeen.Format(time.TimeOnly),
		)
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVarP(&discoverTimeout, "timeout", "t", 5, "How long to keep scanning, in seconds")
	discoverCmd.Flags().IntVar(&announceInterval, "announce-interval", 2, "Seconds between announcements when not silent")
	discoverCmd.Flags().BoolVar(&discoverSilent, "silent", false, "Do not announce or respond, just listen")
}
