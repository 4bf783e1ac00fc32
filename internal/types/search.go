package types

type SearchAnswer struct {
	Data  Message `json:"data"`
	Score float32 `json:"score"`
}

type SearchStats struct {
	Total   uint64  `json:"total"`
	Seconds float64 `json:"time"`
}

type SearchResult struct {
	Query   string         `json:"query"`
	Answers []SearchAnswer `json:"answers"`
	Stats   SearchStats    `json:"stats"`
}
