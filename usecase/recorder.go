package usecase

// MutationRecorder observes the outcome of catalog mutations.
type MutationRecorder interface {
	RecordMutation(operation string, err error)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) RecordMutation(string, error) {}
