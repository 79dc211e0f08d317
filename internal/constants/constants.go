package constants

import "time"

// Boolean string values
const (
	BoolTrue  = "true"
	BoolFalse = "false"
	BoolYes   = "yes"
	BoolNo    = "no"
	BoolOne   = "1"
	BoolZero  = "0"
)

// Search limits
const (
	DefaultSearchLimit = 50
	DefaultListLimit   = 20
	MaxSearchLimit     = 1000
	MinTokenLength     = 2
)

// Text truncation lengths
const (
	SnippetLength       = 150
	SnippetContextLead  = 50
	ShortPreviewLength  = 80
	SummaryNoteMaxChars = 1000
)

// Default timeouts for external calls
const (
	DefaultOCRTimeout      = 30 * time.Second
	DefaultVLMTimeout      = 120 * time.Second
	DefaultPeerTimeout     = 120 * time.Second
	DefaultPipelineTimeout = 5 * time.Minute
	DefaultSummaryTimeout  = 2 * time.Minute
	PeerTestTimeout        = 15 * time.Second
	DefaultIngestTimeout   = 30 * time.Second
)

// Artifact store layout
const (
	ImageExt             = ".png"
	NoteExt              = ".md"
	BasenameLayout       = "20060102_150405"
	DailySummaryDir      = "daily_summaries"
	WeeklySummaryDir     = "weekly_summaries"
	DailySummaryPrefix   = "daily_summary_"
	WeeklySummaryPrefix  = "weekly_summary_"
	DefaultIndexFilename = "search_index.db"
	// MaxPlaceAttempts bounds how many _N suffixes a run tries when another
	// writer keeps taking its id.
	MaxPlaceAttempts = 16
)

// File permissions
const (
	ConfigFileMode = 0600 // Secure file permissions for config
	DataFileMode   = 0644
	DataDirMode    = 0755
)
