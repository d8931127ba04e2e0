package vidfetchctl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
	"github.com/vidfetch/vidfetch/internal/vidfetch/gateway"
)

// Watch streams job events to the output. With a download id it follows
// that one job and returns once the job reaches a terminal state; without
// one it follows everything until interrupted.
func (a *App) Watch(ctx context.Context, downloadId string, raw bool) error {
	if downloadId == "" {
		fmt.Fprintln(a.Out, "Watching all jobs")
	} else {
		fmt.Fprintf(a.Out, "Watching job %s\n", downloadId)
	}

	return a.client().Watch(ctx, downloadId, func(message gateway.Message) bool {
		if raw {
			data, err := json.Marshal(message)
			if err != nil {
				fmt.Fprintf(a.Out, "error formatting event: %s\n", err)
			} else {
				fmt.Fprintf(a.Out, "%s\n", string(data))
			}
		} else {
			a.printEvent(message)
		}
		if downloadId != "" && message.DownloadID == downloadId {
			return message.Type == gateway.MessageDone || message.Type == gateway.MessageError
		}
		return false
	})
}

func (a *App) printEvent(message gateway.Message) {
	stamp := time.Now().Format(time.Stamp)
	switch message.Type {
	case gateway.MessageQueueStatus:
		counts := map[domain.JobState]int{}
		for _, job := range message.Queue {
			counts[job.State]++
		}
		fmt.Fprintf(a.Out, "%s | queue: %d queued, %d running, %d done, %d failed, %d cancelled\n",
			stamp, counts[domain.JobQueued], counts[domain.JobRunning], counts[domain.JobDone],
			counts[domain.JobFailed], counts[domain.JobCancelled])
	case gateway.MessageProgress:
		fmt.Fprintf(a.Out, "%s | %s: %.1f%% %s\n", stamp, message.DownloadID, message.Percent, message.Message)
	case gateway.MessageDone:
		fmt.Fprintf(a.Out, "%s | %s: done -> %s\n", stamp, message.DownloadID, message.File)
	case gateway.MessageError:
		fmt.Fprintf(a.Out, "%s | %s: failed: %s\n", stamp, message.DownloadID, message.Message)
	default:
		fmt.Fprintf(a.Out, "%s | %s\n", stamp, message.Type)
	}
}
