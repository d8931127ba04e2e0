package domain

type EventKind string

const (
	EventQueued   EventKind = "queued"
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Event is one lifecycle notification for one job. Events are ephemeral:
// they are fanned out to whoever is subscribed at publish time and then
// forgotten.
type Event struct {
	Kind    EventKind
	JobID   string
	Percent float64
	Message string
	File    string
}

func QueuedEvent(jobID string) Event {
	return Event{Kind: EventQueued, JobID: jobID}
}

func ProgressEvent(jobID string, percent float64, message string) Event {
	return Event{Kind: EventProgress, JobID: jobID, Percent: percent, Message: message}
}

func DoneEvent(jobID string, file string, message string) Event {
	return Event{Kind: EventDone, JobID: jobID, File: file, Message: message}
}

func ErrorEvent(jobID string, message string) Event {
	return Event{Kind: EventError, JobID: jobID, Message: message}
}
