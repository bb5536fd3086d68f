package request

// SubmitBatchRequest queues keywords for batch research.
type SubmitBatchRequest struct {
	Keywords []string `json:"keywords"`
	Force    bool     `json:"force"`
}
