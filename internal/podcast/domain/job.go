package domain

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Concept is one extracted idea with its plain-language explanation.
type Concept struct {
	Concept     string `json:"concept"`
	Explanation string `json:"explanation"`
}

// Job is the single shared record a podcast-generation job moves through.
// Every pipeline stage reads and writes this row; all mutations go through
// status-guarded updates so a stale writer can never clobber a newer state.
type Job struct {
	JobID           string         `db:"job_id"`
	UserID          string         `db:"user_id"`
	Status          Status         `db:"status"`
	Filename        string         `db:"filename"`
	SourceObjectKey string         `db:"source_object_key"`
	ExtractedText   string         `db:"extracted_text"`
	NeedsChunking   bool           `db:"needs_chunking"`
	TextChunks      types.JSONText `db:"text_chunks"`
	Concepts        types.JSONText `db:"concepts"`
	GeneratedScript string         `db:"generated_script"`
	ScriptChunks    types.JSONText `db:"script_chunks"`
	PodcastURL      string         `db:"podcast_url"`
	DurationSeconds float64        `db:"duration_seconds"`
	ErrorMessage    string         `db:"error_message"`
	LastHeartbeatAt *time.Time     `db:"last_heartbeat_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// DecodeTextChunks returns the stored chunk list, nil when none was written.
func (j *Job) DecodeTextChunks() ([]string, error) {
	return decodeStrings(j.TextChunks)
}

// DecodeScriptChunks returns per-chunk scripts, nil when none was written.
func (j *Job) DecodeScriptChunks() ([]string, error) {
	return decodeStrings(j.ScriptChunks)
}

// DecodeConcepts returns the stored concept list, nil when none was written.
func (j *Job) DecodeConcepts() ([]Concept, error) {
	if emptyJSON(j.Concepts) {
		return nil, nil
	}
	var out []Concept
	if err := json.Unmarshal(j.Concepts, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeStrings(raw types.JSONText) ([]string, error) {
	if emptyJSON(raw) {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// emptyJSON reports whether the column holds no usable value. sqlx scans a
// SQL NULL into JSONText as "{}", so that counts as empty too.
func emptyJSON(raw types.JSONText) bool {
	s := string(raw)
	return len(raw) == 0 || s == "null" || s == "{}" || s == "[]"
}
