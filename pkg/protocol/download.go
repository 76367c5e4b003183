package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FileInfo describes one file offered by a peer.
type FileInfo struct {
	ID       string         `json:"id"`
	FileName string         `json:"fileName"`
	Size     uint64         `json:"size"`
	FileType string         `json:"fileType"`
	SHA256   string         `json:"sha256,omitempty"`
	Preview  string         `json:"preview,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DownloadInfo is the sender's device info as returned by prepare-download.
type DownloadInfo struct {
	DeviceInfo
	Version  string `json:"version"`
	Download bool   `json:"download"`
}

// PrepareDownloadResponse is the manifest of a download session.
type PrepareDownloadResponse struct {
	Info      DownloadInfo        `json:"info"`
	SessionID string              `json:"sessionId"`
	Files     map[string]FileInfo `json:"files"`
}

// TotalSize sums the declared sizes of all files.
func (r *PrepareDownloadResponse) TotalSize() uint64 {
	var total uint64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// DecodePrepareDownload parses and validates a prepare-download body.
func DecodePrepareDownload(b []byte) (*PrepareDownloadResponse, error) {
	var resp PrepareDownloadResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, errors.New("missing sessionId")
	}
	if resp.Files == nil {
		return nil, errors.New("missing files")
	}
	for key, f := range resp.Files {
		if f.ID == "" {
			f.ID = key
			resp.Files[key] = f
		}
		if f.FileName == "" {
			return nil, fmt.Errorf("file %q has no fileName", key)
		}
	}
	return &resp, nil
}
