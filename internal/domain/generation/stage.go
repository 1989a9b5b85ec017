package generation

type Stage string

const (
	StageInitialization Stage = "initialization"
	StageConfigLoad     Stage = "config_load"
	StagePromptBuild    Stage = "prompt_build"
	StageAPICall        Stage = "api_call"
	StageResponseParse  Stage = "response_parse"
	StageDuplicateCheck Stage = "duplicate_check"
	StageDatabaseSave   Stage = "database_save"
	StageComplete       Stage = "complete"
	StageFailed         Stage = "failed"
)

// pipeline lists the non-failed stages in the order a session walks them.
var pipeline = []Stage{
	StageInitialization,
	StageConfigLoad,
	StagePromptBuild,
	StageAPICall,
	StageResponseParse,
	StageDuplicateCheck,
	StageDatabaseSave,
	StageComplete,
}

// Order returns the position of s in the pipeline, or -1 for failed/unknown.
func (s Stage) Order() int {
	for i, st := range pipeline {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s == StageFailed || s.Order() >= 0 }

func (s Stage) Terminal() bool { return s == StageComplete || s == StageFailed }

// Status is the coarse projection of the stage.
func (s Stage) Status() Status {
	switch s {
	case StageComplete:
		return StatusCompleted
	case StageFailed:
		return StatusFailed
	default:
		return StatusInProgress
	}
}

// CanTransition reports whether a session at from may move to to.
// Moves are forward-only; failed is reachable from any non-terminal stage.
func CanTransition(from, to Stage) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	if to == StageFailed {
		return true
	}
	return to.Order() > from.Order()
}

func Stages() []Stage {
	out := make([]Stage, len(pipeline), len(pipeline)+1)
	copy(out, pipeline)
	return append(out, StageFailed)
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
	TriggerCLI    Trigger = "cli"
)
