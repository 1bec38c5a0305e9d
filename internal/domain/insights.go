package domain

import "time"

// TranscriptSummary identifies a transcript returned by the listing call.
type TranscriptSummary struct {
	ID        string
	CreatedAt time.Time
}

const TurnTypeRequest = "request"

// DialogTurn is one message of a transcript. Timestamp keeps the raw text
// sent by the transcript service; Query is only set on request turns.
type DialogTurn struct {
	Type      string
	Timestamp string
	Query     string
}

// Dialog is the fetched turn sequence of a single transcript.
type Dialog struct {
	TranscriptID string
	Turns        []DialogTurn
}

// QuestionBatch groups raw questions for one calendar day, or for the whole
// window when Day is empty.
type QuestionBatch struct {
	Day       string
	Questions []string
}

type QuestionFrequency struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

type UsageAccount struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	EstimatedCost    float64 `json:"estimatedCost"`
}

// Add returns the component-wise sum of u and other.
func (u UsageAccount) Add(other UsageAccount) UsageAccount {
	return UsageAccount{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		EstimatedCost:    u.EstimatedCost + other.EstimatedCost,
	}
}

// ClusteringResult is the payload of a completed report.
type ClusteringResult struct {
	Questions []QuestionFrequency `json:"questions"`
	Usage     UsageAccount        `json:"usage"`
}

func (r *ClusteringResult) Clone() *ClusteringResult {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Questions = append([]QuestionFrequency(nil), r.Questions...)
	if clone.Questions == nil {
		clone.Questions = []QuestionFrequency{}
	}
	return &clone
}
