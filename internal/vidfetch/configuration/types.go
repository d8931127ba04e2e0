package configuration

import (
	"time"
)

type VidfetchConfig struct {
	HttpPort    uint16
	MetricsPort uint16

	// Directory the fetcher writes artifacts into; also the root of the
	// static file server.
	MediaDir string
	// Directory holding the web UI served at /.
	WebDir string

	Scheduling SchedulingConfig
	Fetcher    FetcherConfig
	Gateway    GatewayConfig
	Library    LibraryConfig
	Playback   PlaybackConfig
}

type SchedulingConfig struct {
	// Maximum number of jobs running at once.
	Capacity int
	// Maximum number of non-terminal jobs held at once; submissions beyond
	// this are rejected.
	MaxQueuedJobs int
}

type FetcherConfig struct {
	// Hard ceiling on a single download.
	Timeout time.Duration
	// Minimum interval between forwarded progress reports per job.
	ProgressInterval time.Duration
}

type GatewayConfig struct {
	// Per-session outbound queue size. A session that falls this far behind
	// is disconnected.
	SendQueueSize int
	WriteTimeout  time.Duration
}

type LibraryConfig struct {
	// Number of newest artifacts kept by the janitor.
	RetainCount   int
	SweepInterval time.Duration
}

type PlaybackConfig struct {
	// How long an authenticated pairing stays valid without activity.
	SessionTTL time.Duration
	// Where pairing state survives restarts.
	StateFile      string
	RequestTimeout time.Duration
}
