package playback

// Cause represents why the playback state changed.
type Cause int

const (
	CauseClientUpdate Cause = iota // A client played, paused or seeked
	CauseQueueStarted              // The first track was added to an empty queue
	CauseTrackEnded                // The head finished and the next track starts
	CauseQueueEmpty                // The last track finished
)

// String returns the string representation of the cause.
func (c Cause) String() string {
	switch c {
	case CauseClientUpdate:
		return "client_update"
	case CauseQueueStarted:
		return "queue_started"
	case CauseTrackEnded:
		return "track_ended"
	case CauseQueueEmpty:
		return "queue_empty"
	default:
		return "unknown"
	}
}
