package types

// Status is the lifecycle state of a node within one run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusBlocked marks a node skipped because an upstream node failed.
	StatusBlocked Status = "blocked"
)

// Terminal reports whether s is a final state for a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusBlocked
}

// ExecutionResult is the state of a single node in a run.
type ExecutionResult struct {
	NodeID string `json:"nodeId"`
	Status Status `json:"status"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PromptOutput is produced by prompt nodes.
type PromptOutput struct {
	Prompt string `json:"prompt"`
}

// VideoOutput is produced by every node kind that yields a video.
type VideoOutput struct {
	VideoURL     string `json:"videoUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// AudioOutput is produced by music nodes.
type AudioOutput struct {
	AudioURL string `json:"audioUrl"`
}

// Run states persisted in a RunRecord.
const (
	RunStateCompleted = "completed"
	RunStatePartial   = "partial"
	RunStateCancelled = "cancelled"
)

// RunRecord is the persisted summary of a finished run.
type RunRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	State      string            `json:"state"`
	Order      []string          `json:"order"`
	Results    []ExecutionResult `json:"results"`
	Error      string            `json:"error,omitempty"`
	StartedAt  int64             `json:"started_at"`
	FinishedAt int64             `json:"finished_at"`
}

// SharedWorkflow is a persisted share link.
type SharedWorkflow struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name,omitempty"`
	Token     string `json:"token"`
	CreatedAt int64  `json:"created_at"`
}
