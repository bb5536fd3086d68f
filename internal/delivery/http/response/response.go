package response

import "github.com/tomichandesu/research-tool-sub000/internal/usecase"

type SubmitBatchResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Queued   []string `json:"queued"`
	Rejected []string `json:"rejected,omitempty"`
}

// StatusResponse reports the exploration and batch queue state. Either part
// is omitted when this process does not run it.
type StatusResponse struct {
	Scheduler   *usecase.Snapshot `json:"scheduler,omitempty"`
	QueueLength *int64            `json:"queue_length,omitempty"`
}

// KeywordStatResponse mirrors repository.KeywordStat.
type KeywordStatResponse struct {
	Keyword      string  `json:"keyword"`
	Explorations int     `json:"explorations"`
	BestScore    float64 `json:"best_score"`
	Matches      int     `json:"matches"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
