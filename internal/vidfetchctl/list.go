package vidfetchctl

import (
	"fmt"
)

// ListArtifacts prints the downloaded files, newest first.
func (a *App) ListArtifacts() error {
	ctx, cancel := timeout()
	defer cancel()

	files, err := a.client().ListArtifacts(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(a.Out, "No artifacts yet")
		return nil
	}
	for _, file := range files {
		fmt.Fprintln(a.Out, file)
	}
	return nil
}
