package status

import "runwatch/events"

// FindError returns the error payload of the first failure event of stepKey.
// The boolean is false when the step never failed.
func FindError(log *events.Log, stepKey string) (events.ErrorInfo, bool) {
	for _, e := range log.All() {
		if e.Kind != events.KindStepFailure || e.StepKey != stepKey {
			continue
		}
		if e.Error == nil {
			return events.ErrorInfo{Message: e.Message}, true
		}
		return *e.Error, true
	}
	return events.ErrorInfo{}, false
}
