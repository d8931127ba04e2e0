package fetcher

import (
	"context"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// Artifact is what a finished fetch leaves in the media directory.
type Artifact struct {
	// File is the artifact's name relative to the media directory: the
	// downloaded container for download mode, the playlist for stream mode.
	File string
}

// ProgressFunc receives percent (0-100) and a human-readable message.
// Reports may repeat or regress; the caller is responsible for clamping.
type ProgressFunc func(percent float64, message string)

// Fetcher runs one fetch to completion. Implementations call report zero or
// more times and then return exactly once: a nil error with the artifact on
// success, ctx.Err() when cancelled, any other error on failure. After
// Fetch returns, report must not be called again.
type Fetcher interface {
	Fetch(ctx context.Context, request domain.JobRequest, report ProgressFunc) (Artifact, error)
}

// FetchFunc adapts a function to the Fetcher interface, mirroring
// http.HandlerFunc. Tests script fetch behavior with it.
type FetchFunc func(ctx context.Context, request domain.JobRequest, report ProgressFunc) (Artifact, error)

func (f FetchFunc) Fetch(ctx context.Context, request domain.JobRequest, report ProgressFunc) (Artifact, error) {
	return f(ctx, request, report)
}
