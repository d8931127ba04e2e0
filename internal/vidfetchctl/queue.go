package vidfetchctl

import (
	"fmt"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// Queue prints every job the backend tracks, in submission order.
func (a *App) Queue() error {
	ctx, cancel := timeout()
	defer cancel()

	jobs, err := a.client().Queue(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(a.Out, "Queue is empty")
		return nil
	}
	for _, job := range jobs {
		fmt.Fprintln(a.Out, formatJob(job))
	}
	return nil
}

// ClearFinished drops every terminal job from the backend's queue view.
func (a *App) ClearFinished() error {
	ctx, cancel := timeout()
	defer cancel()

	message, err := a.client().ClearFinished(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s\n", message)
	return nil
}

func formatJob(job domain.JobInfo) string {
	line := fmt.Sprintf("%s | %-9s | %5.1f%% | %s", job.ID, job.State, job.Percent, job.URL)
	if job.File != "" {
		line += fmt.Sprintf(" -> %s", job.File)
	}
	if job.Error != "" {
		line += fmt.Sprintf(" (%s)", job.Error)
	}
	return line
}
