package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Mode selects what the fetcher produces: a plain file download or an
// HLS stream prepared for immediate playback.
type Mode string

const (
	ModeDownload Mode = "download"
	ModeStream   Mode = "stream"
)

// JobState is the lifecycle of a submitted job. States only ever move
// forward: Queued -> Running -> one of the terminal states.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobDone      JobState = "done"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

func (s JobState) IsTerminal() bool {
	switch s {
	case JobDone, JobFailed, JobCancelled:
		return true
	}
	return false
}

// ValidTransition reports whether a job may move from one state to another.
// There is no transition out of a terminal state.
func ValidTransition(from, to JobState) bool {
	switch from {
	case JobQueued:
		return to == JobRunning || to == JobCancelled
	case JobRunning:
		return to.IsTerminal()
	default:
		return false
	}
}

// JobRequest is the immutable description of what to fetch. Field names
// match the JSON the clients already send.
type JobRequest struct {
	URL      string `json:"url"`
	Mode     Mode   `json:"mode,omitempty"`
	AutoPlay bool   `json:"autoPlay,omitempty"`
	// Player to start once the artifact lands, and the address this
	// backend is reachable at from that player's point of view.
	PlayerURL  string `json:"vlcUrl,omitempty"`
	BackendURL string `json:"backendUrl,omitempty"`
}

// Validate rejects requests that can never become a runnable job.
func (r *JobRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return errors.New("url is required")
	}
	switch r.Mode {
	case "", ModeDownload, ModeStream:
	default:
		return errors.Errorf("unsupported mode %q", r.Mode)
	}
	if r.AutoPlay && r.PlayerURL == "" {
		return errors.New("autoPlay requires a player url")
	}
	return nil
}

// JobInfo is a point-in-time copy of one job, safe to hand to any caller.
// The scheduler never exposes its live records.
type JobInfo struct {
	ID        string    `json:"downloadId"`
	URL       string    `json:"url"`
	Mode      Mode      `json:"mode,omitempty"`
	State     JobState  `json:"status"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	File      string    `json:"file,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
