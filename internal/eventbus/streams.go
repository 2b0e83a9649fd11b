package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	// StreamMaterialization is the JetStream stream for projector
	// notifications (entity/edge materialized, checkpoint advanced).
	StreamMaterialization = "MATERIALIZATION_EVENTS"

	// StreamJobs is the JetStream stream for job queue state transitions.
	StreamJobs = "JOB_EVENTS"

	// SubjectMaterializationPrefix is the subject prefix for materialization events.
	SubjectMaterializationPrefix = "graph."

	// SubjectJobPrefix is the subject prefix for job queue events.
	SubjectJobPrefix = "jobs."
)

// SubjectForEvent returns the NATS subject for a given event type.
func SubjectForEvent(eventType EventType) string {
	if eventType == EventJobTransitioned {
		return SubjectJobPrefix + string(eventType)
	}
	return SubjectMaterializationPrefix + string(eventType)
}

// EnsureStreams creates the required JetStream streams if they don't already
// exist. Called during server startup when NATS is enabled. Notification
// streams only — never the source of truth for materialized state
// (SPEC_FULL.md §2, "Event bus / fan-out").
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamMaterialization); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamMaterialization,
			Subjects: []string{SubjectMaterializationPrefix + ">"},
			Storage:  nats.FileStorage,
			// Retain last 10000 messages or 100MB, whichever comes first.
			MaxMsgs:  10000,
			MaxBytes: 100 << 20,
		})
		if err != nil {
			return fmt.Errorf("create %s stream: %w", StreamMaterialization, err)
		}
	}

	if _, err := js.StreamInfo(StreamJobs); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamJobs,
			Subjects: []string{SubjectJobPrefix + ">"},
			Storage:  nats.FileStorage,
			MaxMsgs:  10000,
			MaxBytes: 100 << 20,
		})
		if err != nil {
			return fmt.Errorf("create %s stream: %w", StreamJobs, err)
		}
	}

	return nil
}
