package models

import "time"

// RecordingStatus tracks ingestion of a raw call recording through ASR:
// queued, processing, completed, or failed.
type RecordingStatus string

const (
	RecordingStatusQueued RecordingStatus = "queued"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusCompleted RecordingStatus = "completed"
	RecordingStatusFailed RecordingStatus = "failed"
)

// Recording is the uploaded call audio, referencing its bytes by object
// key rather than embedding them. The bytes themselves are a
// collaborator concern, see pkg/objectstore.
type Recording struct {
	ID string `json:"id"`
	CompanyID string `json:"company_id"`
	ObjectKey string `json:"object_key"`
	OriginalName string `json:"original_name,omitempty"`
	DurationSecs float64 `json:"duration_secs,omitempty"`
	Status RecordingStatus `json:"status"`
	TranscriptID *string `json:"transcript_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
