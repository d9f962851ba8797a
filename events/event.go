package events

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the type of a run event
type Kind string

const (
	KindStepStart           Kind = "STEP_START"
	KindStepSuccess         Kind = "STEP_SUCCESS"
	KindStepFailure         Kind = "STEP_FAILURE"
	KindStepSkipped         Kind = "STEP_SKIPPED"
	KindStepOutput          Kind = "STEP_OUTPUT"
	KindStepMaterialization Kind = "STEP_MATERIALIZATION"
	KindEngineEvent         Kind = "ENGINE_EVENT"
	KindUserLog             Kind = "USER_LOG"
)

// Kinds lists every known event kind
var Kinds = []Kind{
	KindStepStart,
	KindStepSuccess,
	KindStepFailure,
	KindStepSkipped,
	KindStepOutput,
	KindStepMaterialization,
	KindEngineEvent,
	KindUserLog,
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Level is the severity of a run event
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Levels lists every level from least to most severe
var Levels = []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}

// ParseLevel parses a level name case-insensitively
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l == "WARN" {
		return LevelWarning, nil
	}
	for _, known := range Levels {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// ErrorInfo is the error payload attached to a step failure
type ErrorInfo struct {
	Message   string   `json:"message"`
	ClassName string   `json:"class_name,omitempty"`
	Stack     []string `json:"stack,omitempty"`
}

// OutputInfo describes an output produced or materialized by a step
type OutputInfo struct {
	OutputName  string `json:"output_name"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
}

// RunEvent is a single entry of a run's event log.
// Seq is assigned by Log.Append and reflects arrival order.
type RunEvent struct {
	Seq       int         `json:"seq"`
	Kind      Kind        `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	StepKey   string      `json:"step_key,omitempty"`
	Message   string      `json:"message"`
	Level     Level       `json:"level"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Output    *OutputInfo `json:"output,omitempty"`
}

// IsStepEvent reports whether the event is attributed to a step
func (e RunEvent) IsStepEvent() bool {
	return e.StepKey != ""
}
