package vidfetchctl

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// Submit queues a new download on the backend and prints the job id.
func (a *App) Submit(request *domain.JobRequest) error {
	// The player reaches the backend through the same address this command
	// uses, unless the caller says otherwise.
	if request.AutoPlay && request.BackendURL == "" {
		request.BackendURL = a.Params.ApiConnectionDetails.BackendUrl
	}

	ctx, cancel := timeout()
	defer cancel()

	jobId, err := a.client().Submit(ctx, request)
	if err != nil {
		return errors.Wrapf(err, "error submitting %s", request.URL)
	}
	fmt.Fprintf(a.Out, "Submitted download %s for %s\n", jobId, request.URL)
	return nil
}
