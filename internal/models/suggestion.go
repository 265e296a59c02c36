package models

type SuggestionReason string

const (
	ReasonFrequentAtThisTime SuggestionReason = "frequent_at_this_time"
	ReasonShortWait          SuggestionReason = "short_wait"
	ReasonPopularToday       SuggestionReason = "popular_today"
)

type Suggestion struct {
	Queue  QueueRef         `json:"queue"`
	Score  float64          `json:"score"`
	Reason SuggestionReason `json:"reason"`
}
