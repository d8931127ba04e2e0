package gateway

import (
	"github.com/vidfetch/vidfetch/internal/vidfetch/domain"
)

// Outbound message types, matching what the web clients already parse.
const (
	MessageQueueStatus = "queueStatus"
	MessageProgress    = "progress"
	MessageDone        = "done"
	MessageError       = "error"
	MessageList        = "list"
)

// Inbound actions.
const (
	ActionSubscribeAll = "subscribeAll"
	ActionSubscribe    = "subscribe"
	ActionUnsubscribe  = "unsubscribe"
	ActionList         = "list"
)

// Message is one frame sent to an observer.
type Message struct {
	Type       string           `json:"type"`
	DownloadID string           `json:"downloadId,omitempty"`
	Percent    float64          `json:"percent,omitempty"`
	File       string           `json:"file,omitempty"`
	Message    string           `json:"message,omitempty"`
	Videos     []string         `json:"videos,omitempty"`
	Queue      []domain.JobInfo `json:"queue,omitempty"`
}

// Command is one frame received from an observer.
type Command struct {
	Action     string `json:"action"`
	DownloadID string `json:"downloadId,omitempty"`
}

func QueueStatusMessage(snapshot []domain.JobInfo) Message {
	return Message{Type: MessageQueueStatus, Queue: snapshot}
}

func ListMessage(videos []string) Message {
	return Message{Type: MessageList, Videos: videos}
}

// FromEvent converts a lifecycle event into its wire form. Queued events
// have no per-event frame; new jobs surface through the queue snapshot
// broadcast instead.
func FromEvent(event domain.Event) (Message, bool) {
	switch event.Kind {
	case domain.EventProgress:
		return Message{
			Type:       MessageProgress,
			DownloadID: event.JobID,
			Percent:    event.Percent,
			Message:    event.Message,
		}, true
	case domain.EventDone:
		return Message{
			Type:       MessageDone,
			DownloadID: event.JobID,
			File:       event.File,
			Message:    event.Message,
		}, true
	case domain.EventError:
		return Message{
			Type:       MessageError,
			DownloadID: event.JobID,
			Message:    event.Message,
		}, true
	default:
		return Message{}, false
	}
}
