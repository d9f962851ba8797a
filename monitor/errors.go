package monitor

import (
	"errors"
	"fmt"

	"runwatch/plan"
)

var (
	// ErrArtifactsNotPersisted is matched by *ArtifactsNotPersistedError
	ErrArtifactsNotPersisted = errors.New("upstream artifacts are not persisted")
	// ErrConfigParse is matched by *ConfigParseError
	ErrConfigParse = errors.New("invalid run config")
	// ErrNoSubmitter is returned when a facade has nowhere to send requests
	ErrNoSubmitter = errors.New("no submitter configured")
)

// ArtifactsNotPersistedError is returned instead of submitting when the plan
// does not keep intermediate outputs. Request is the request that would have
// been submitted; retry with AllowUnpersisted to submit it anyway.
type ArtifactsNotPersistedError struct {
	Request plan.ReexecutionRequest
}

func (e *ArtifactsNotPersistedError) Error() string {
	return fmt.Sprintf("re-execution of %v reuses %d output(s) that are not persisted",
		e.Request.StepKeys, len(e.Request.ReusedOutputs))
}

func (e *ArtifactsNotPersistedError) Is(target error) bool {
	return target == ErrArtifactsNotPersisted
}

// ConfigParseError reports a run config blob that could not be decoded
type ConfigParseError struct {
	Err error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("failed to parse run config: %v", e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

func (e *ConfigParseError) Is(target error) bool {
	return target == ErrConfigParse
}
