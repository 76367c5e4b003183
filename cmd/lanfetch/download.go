package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"tarun-kavipurapu/lanfetch/peer"
	"tarun-kavipurapu/lanfetch/pkg/monitor"
	"tarun-kavipurapu/lanfetch/pkg/protocol"

	"github.com/spf13/cobra"
)

var (
	senderAddr     string
	senderPeer     string
	senderPort     int
	senderProtocol string
	pin            string
	destDir        string
	assumeYes      bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the files a LocalSend device offers",
	Long: `Open a download session with a sender, list the files it offers and,
after confirmation, fetch them all concurrently into the destination directory.

The sender is given either directly with --sender or by alias, fingerprint
or address of a device found by a discovery scan with --peer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyDiscoverFlags(cmd)
		if cmd.Flags().Changed("dest") {
			cfg.DownloadDir = destDir
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		done := startMetrics(ctx)
		defer done()

		var baseURL string
		switch {
		case senderPeer != "":
			snap, err := runDiscovery(ctx, out)
			if err != nil {
				return err
			}
			rec, ok := snap.Find(senderPeer)
			if !ok {
				return fmt.Errorf("no device matching %q was found", senderPeer)
			}
			baseURL = rec.BaseURL()
		case senderAddr != "":
			u, err := senderBaseURL(senderAddr, senderPort, senderProtocol)
			if err != nil {
				return err
			}
			baseURL = u
		default:
			return fmt.Errorf("either --sender or --peer is required")
		}

		dest, err := filepath.Abs(cfg.DownloadDir)
		if err != nil {
			return fmt.Errorf("failed to resolve destination %s: %w", cfg.DownloadDir, err)
		}

		tracker := peer.NewTracker()
		client := peer.NewClient(peer.ClientOptions{
			RequestTimeout:   cfg.RequestTimeout(),
			MaxConcurrent:    cfg.Download.MaxConcurrent,
			VerifyChecksum:   cfg.Download.VerifyChecksum,
			AcceptSelfSigned: cfg.Download.AcceptSelfSigned,
			Tracker:          tracker,
			Metrics:          monitor.Global,
		})

		manifest, err := client.PrepareDownload(ctx, baseURL, pin)
		if err != nil {
			return err
		}

		printManifest(out, manifest)
		if len(manifest.Files) == 0 {
			fmt.Fprintln(out, "The sender offers no files.")
			return nil
		}
		if !assumeYes && !confirm(fmt.Sprintf("The above files will be downloaded to %s. Continue?", dest)) {
			fmt.Fprintln(out, "Download cancelled.")
			return nil
		}

		var renderer *peer.ProgressRenderer
		if peer.IsTerminal(os.Stderr) {
			renderer = peer.NewProgressRenderer(tracker, os.Stderr, manifest.Info.Alias, true)
			go renderer.Start()
		}
		results := client.FetchAll(ctx, baseURL, pin, manifest, dest)
		if renderer != nil {
			renderer.StopAndWait()
		}

		printResults(out, results)
		if failed := results.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d file(s) failed", len(failed), len(results))
		}
		return nil
	},
}

// senderBaseURL builds the API root for a sender given as host or host:port.
func senderBaseURL(addr string, port int, scheme string) (string, error) {
	proto, err := protocol.ParseProtocol(scheme)
	if err != nil {
		return "", err
	}
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		p = strconv.Itoa(port)
	}
	if host == "" {
		return "", fmt.Errorf("invalid sender address %q", addr)
	}
	if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("invalid sender port %q", p)
	}
	return fmt.Sprintf("%s://%s", proto, net.JoinHostPort(host, p)), nil
}

func printManifest(out io.Writer, m *protocol.PrepareDownloadResponse) {
	files := make([]protocol.FileInfo, 0, len(m.Files))
	for _, f := range m.Files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].FileName < files[j].FileName })

	fmt.Fprintf(out, "%s offers %d file(s), %s total:\n",
		m.Info.Alias, len(files), peer.FormatSize(m.TotalSize()))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.FileType, peer.FormatSize(f.Size), f.FileName)
	}
	tw.Flush()
}

func printResults(out io.Writer, results peer.Results) {
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(out, "  %s %s -> %s (%s)\n", peer.FileCompleted.Icon(), r.FileName, r.Path, peer.FormatSize(uint64(r.Bytes)))
			continue
		}
		fmt.Fprintf(out, "  %s %s: %v\n", peer.FileFailed.Icon(), r.FileName, r.Err)
	}
	fmt.Fprintf(out, "%d succeeded, %d failed\n", len(results.Succeeded()), len(results.Failed()))
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	f := downloadCmd.Flags()
	f.StringVarP(&senderAddr, "sender", "s", "", "Sender address (host or host:port)")
	f.StringVar(&senderPeer, "peer", "", "Discover first and download from the device with this alias, fingerprint or address")
	f.IntVarP(&senderPort, "port", "p", int(protocol.DefaultPort), "Sender port when --sender has none")
	f.StringVar(&senderProtocol, "protocol", string(protocol.ProtocolHTTP), "Sender scheme (http or https)")
	f.StringVar(&pin, "pin", "", "PIN required by the sender, if any")
	f.StringVarP(&destDir, "dest", "d", ".", "Directory to save files into")
	f.BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	f.IntVarP(&discoverTimeout, "timeout", "t", 5, "Discovery scan length in seconds when --peer is used")
	downloadCmd.MarkFlagsMutuallyExclusive("sender", "peer")
}
