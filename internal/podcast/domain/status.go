package domain

// Status tracks a job through the podcast pipeline.
type Status string

const (
	StatusPendingAnalysis   Status = "pending_analysis"
	StatusAnalyzingText     Status = "analyzing_text"
	StatusTextAnalyzed      Status = "text_analyzed"
	StatusGeneratingScript  Status = "generating_script_background"
	StatusSendingToOpenAI   Status = "sending_to_openai"
	StatusScriptGenerated   Status = "script_generated"
	StatusGeneratingTTS     Status = "generating_tts"
	StatusUploading         Status = "uploading"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// pipelineOrder maps each in-pipeline status to its position. Escape
// statuses (failed, cancelled) are not part of the forward ordering.
var pipelineOrder = map[Status]int{
	StatusPendingAnalysis:  0,
	StatusAnalyzingText:    1,
	StatusTextAnalyzed:     2,
	StatusGeneratingScript: 3,
	StatusSendingToOpenAI:  4,
	StatusScriptGenerated:  5,
	StatusGeneratingTTS:    6,
	StatusUploading:        7,
	StatusCompleted:        8,
}

// IsTerminal reports whether no further pipeline work may touch the job.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	if s == StatusFailed || s == StatusCancelled {
		return true
	}
	_, ok := pipelineOrder[s]
	return ok
}

// Precedes reports whether s comes strictly before other in pipeline order.
// Either status being an escape status yields false.
func (s Status) Precedes(other Status) bool {
	a, okA := pipelineOrder[s]
	b, okB := pipelineOrder[other]
	return okA && okB && a < b
}
