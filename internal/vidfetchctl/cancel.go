package vidfetchctl

import (
	"fmt"

	"github.com/pkg/errors"
)

// Cancel asks the backend to stop one job.
func (a *App) Cancel(downloadId string) error {
	fmt.Fprintf(a.Out, "Requesting cancellation of job %s\n", downloadId)

	ctx, cancel := timeout()
	defer cancel()

	message, err := a.client().Cancel(ctx, downloadId)
	if err != nil {
		return errors.Wrapf(err, "error cancelling job %s", downloadId)
	}
	fmt.Fprintf(a.Out, "%s\n", message)
	return nil
}
