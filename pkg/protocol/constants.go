package protocol

const (
	// MulticastGroup is the IPv4 group every LocalSend peer joins for discovery.
	MulticastGroup = "224.0.0.167"
	// DefaultPort is used both for the multicast group and the HTTP API.
	DefaultPort uint16 = 53317

	// Version is the protocol version (major.minor) we announce.
	Version = "2.1"

	PrepareDownloadPath = "/api/localsend/v2/prepare-download"
	DownloadPath        = "/api/localsend/v2/download"

	// UserAgent is sent with every HTTP request to a peer.
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0"

	// MaxDatagramSize bounds a single discovery message.
	MaxDatagramSize = 64 * 1024
)
