// Package protocol defines the bus message shapes and subjects shared by
// the daemon and external trigger sources.
package protocol

import "time"

// TriggerRequest asks the pipeline to voice one syllable at one note.
// Text overrides the mapping table when set; otherwise the syllable mapped
// to Note is used.
type TriggerRequest struct {
	Note      int       `json:"note"`
	Text      string    `json:"text,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TriggerResult reports the outcome of one trigger, published for
// observers after the utterance has been queued for playback.
type TriggerResult struct {
	UtteranceID string    `json:"utterance_id"`
	Note        int       `json:"note"`
	Syllable    string    `json:"syllable"`
	TargetHz    float64   `json:"target_hz"`
	Samples     int       `json:"samples"`
	DurationMS  float64   `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectTrigger       = "notevox.trigger"
	SubjectTriggerResult = "notevox.trigger.result"
)
