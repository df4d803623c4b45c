package domain

// Stage names the pipeline unit of work a queue message targets.
type Stage string

const (
	StageAnalyze Stage = "analyze"
	StageScript  Stage = "script"
	StageTTS     Stage = "tts"
)

// RoutingKeyPrefix is shared by every stage message on the exchange; the
// stage queue binds to RoutingKeyPrefix + ".*".
const RoutingKeyPrefix = "podcast.stage"

// IsValid reports whether s is a known pipeline stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageAnalyze, StageScript, StageTTS:
		return true
	}
	return false
}

// RoutingKey returns the exchange routing key for this stage.
func (s Stage) RoutingKey() string {
	return RoutingKeyPrefix + "." + string(s)
}

// EntryStatus is the status a job must hold for this stage to claim it.
func (s Stage) EntryStatus() Status {
	switch s {
	case StageAnalyze:
		return StatusPendingAnalysis
	case StageScript:
		return StatusTextAnalyzed
	case StageTTS:
		return StatusScriptGenerated
	}
	return ""
}

// StageMessage is the queue payload that hands a job to a pipeline stage.
// It carries only identity; every stage re-reads the row it owns.
type StageMessage struct {
	JobID       string `json:"job_id"`
	Stage       Stage  `json:"stage"`
	DeliveryTag uint64 `json:"-"`
}
