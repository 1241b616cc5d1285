package domain

// ItemResult records the outcome of one per-participant transition inside a
// bulk sweep. A failed item never aborts the sweep; it is carried here.
type ItemResult struct {
	AccountID  string `json:"account_id"`
	Login      string `json:"login"`
	ResourceID string `json:"resource_id,omitempty"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
}

// BatchResult aggregates per-item outcomes of a bulk operation.
type BatchResult struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Details    []ItemResult `json:"details"`
}

// Add appends an item result and updates the counters.
func (b *BatchResult) Add(item ItemResult) {
	b.Total++
	if item.Success {
		b.Successful++
	} else {
		b.Failed++
	}
	b.Details = append(b.Details, item)
}
