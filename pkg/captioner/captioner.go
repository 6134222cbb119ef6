package captioner

import "context"

// Service is the captioning collaborator consumed by the registry and the
// reconciler. Implementations must tolerate empty or placeholder inputs.
type Service interface {
	// Describe returns a free-text caption and a set of short emotion
	// tags for raw image bytes.
	Describe(ctx context.Context, image []byte, format string) (string, []string, error)
	// ExtractEmotion pulls short emotion keywords out of free text, for
	// matching a full sentence against the tag vocabulary.
	ExtractEmotion(ctx context.Context, text string) ([]string, error)
	// DecideEviction asks the collaborator whether one of the candidates
	// should be removed to make room for a new asset.
	DecideEviction(ctx context.Context, candidates []EvictionCandidate, newDescription string) (Decision, error)
}

// EvictionCandidate is one offered record in an eviction decision.
type EvictionCandidate struct {
	Description  string
	UsageCount   int
	RegisterTime int64
}

// Decision is the structured eviction verdict. Index is zero-based into
// the candidate slice and only meaningful when Delete is true.
type Decision struct {
	Delete bool `json:"delete"`
	Index  int  `json:"index"`
}
