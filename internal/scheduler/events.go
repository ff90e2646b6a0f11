package scheduler

// MutationKind identifies the kind of Job Store mutation that needs the
// loop to rebuild or drop a fire-time entry.
type MutationKind string

const (
	MutationCreated MutationKind = "created"
	MutationUpdated MutationKind = "updated"
	MutationDeleted MutationKind = "deleted"
	MutationToggled MutationKind = "toggled"
)

// MutationEvent is posted to the loop whenever the job store changes a job.
// A single typed channel of mutation events is enough here, since the loop
// only ever needs to react, never reply.
type MutationEvent struct {
	JobID string
	Kind  MutationKind
}

// Notify posts a mutation event to the loop, non-blocking: if the channel's
// buffer is full, the oldest pending notification is dropped in favor of
// the newest, since the loop will re-scan the store for the affected job
// anyway.
func (l *Loop) Notify(ev MutationEvent) {
	select {
	case l.mutations <- ev:
	default:
		select {
		case <-l.mutations:
		default:
		}
		select {
		case l.mutations <- ev:
		default:
		}
	}
}
