package models

import "time"

// AdapterKind names an extraction capability.
type AdapterKind string

const (
	KindOCR AdapterKind = "ocr"
	KindVLM AdapterKind = "vlm"
)

type ExtractionStatus string

const (
	ExtractionOK      ExtractionStatus = "ok"
	ExtractionSkipped ExtractionStatus = "skipped"
	ExtractionFailed  ExtractionStatus = "failed"
)

// ExtractionResult is the outcome of one adapter for one capture.
// Error is set iff Status is failed.
type ExtractionResult struct {
	Adapter    AdapterKind      `json:"adapter"`
	Status     ExtractionStatus `json:"status"`
	Text       string           `json:"text,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Error      string           `json:"error,omitempty"`
	Duration   time.Duration    `json:"duration"`

	// Cause keeps the typed error for errors.Is checks; it is not persisted.
	Cause error `json:"-"`
}

func (r ExtractionResult) OK() bool { return r.Status == ExtractionOK }

type PeerStatus string

const (
	PeerOK       PeerStatus = "ok"
	PeerFailed   PeerStatus = "failed"
	PeerTimeout  PeerStatus = "timeout"
	PeerDisabled PeerStatus = "disabled"
)

// PeerResult is the outcome of one post-processing peer for one capture.
type PeerResult struct {
	Peer     string         `json:"peer" yaml:"-"`
	Status   PeerStatus     `json:"status" yaml:"status"`
	Payload  map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration  `json:"duration" yaml:"-"`

	Cause error `json:"-" yaml:"-"`
}

func (r PeerResult) OK() bool { return r.Status == PeerOK }

// PeerInfo describes a configured peer without contacting it.
type PeerInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Command string `json:"command"`
	Tool    string `json:"tool"`
}

// PeerTestResult reports a handshake-only round trip to a peer.
type PeerTestResult struct {
	Name       string        `json:"name"`
	Reachable  bool          `json:"reachable"`
	ServerName string        `json:"server_name,omitempty"`
	Tools      []string      `json:"tools,omitempty"`
	HasTool    bool          `json:"has_tool"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency"`
}
