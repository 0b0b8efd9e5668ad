package types

import "time"

// AggregationStrategy is the rule used to combine collaboration responses
// into a single result.
type AggregationStrategy string

const (
	// AggregateAll collects a response (or a definitive non-response) from
	// every participant before completing.
	AggregateAll AggregationStrategy = "all"

	// AggregateFirst completes on the first valid response and stops
	// collecting from the rest.
	AggregateFirst AggregationStrategy = "first"

	// AggregateMajority completes once a single value holds more votes than
	// all others combined, or computes a plurality when every participant
	// has responded.
	AggregateMajority AggregationStrategy = "majority"

	// AggregateWeighted multiplies each numeric response by the
	// participant's configured weight and averages the results.
	AggregateWeighted AggregationStrategy = "weighted"
)

// CollaborationStatus represents the lifecycle state of a collaboration.
type CollaborationStatus string

const (
	CollaborationPending CollaborationStatus = "pending"

	// CollaborationCompleted means the strategy's sufficiency condition was
	// met before the timeout.
	CollaborationCompleted CollaborationStatus = "completed"

	// CollaborationPartial means the timeout elapsed with at least
	// MinResponses responses collected; the result aggregates those.
	CollaborationPartial CollaborationStatus = "partial"

	// CollaborationInsufficient means the timeout elapsed before
	// MinResponses responses were collected. Distinct from execution
	// failure on purpose.
	CollaborationInsufficient CollaborationStatus = "insufficient"

	CollaborationCancelled CollaborationStatus = "cancelled"
)

// Terminal reports whether the status is final. Responses arriving after a
// terminal transition are dropped.
func (s CollaborationStatus) Terminal() bool {
	return s != CollaborationPending
}

// CollaborationConfig parameterizes a multi-agent collaboration request.
type CollaborationConfig struct {
	// Strategy selects the aggregation rule. Defaults to AggregateAll.
	Strategy AggregationStrategy `json:"strategy"`

	// Timeout bounds the collection window. Defaults to 30s.
	Timeout time.Duration `json:"timeout"`

	// MinResponses is the minimum number of responses required for a
	// partial completion at timeout. Defaults to 1.
	MinResponses int `json:"min_responses"`

	// Weights maps participant IDs to their weight for AggregateWeighted.
	// Missing participants default to weight 1.
	Weights map[string]float64 `json:"weights,omitempty"`
}

// Collaboration is a multi-agent aggregation request: a task fanned out to
// participants whose responses are combined via the configured strategy.
type Collaboration struct {
	ID           string              `json:"id"`
	Initiator    string              `json:"initiator"`
	Participants []string            `json:"participants"`
	Config       CollaborationConfig `json:"config"`

	// Responses holds collected responses keyed by participant ID.
	Responses map[string]any `json:"responses,omitempty"`

	// Result is the aggregated outcome, set on completed/partial.
	Result any `json:"result,omitempty"`

	Status      CollaborationStatus `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the collaboration record.
func (c *Collaboration) Clone() *Collaboration {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Participants != nil {
		cp.Participants = make([]string, len(c.Participants))
		copy(cp.Participants, c.Participants)
	}
	if c.Responses != nil {
		cp.Responses = make(map[string]any, len(c.Responses))
		for k, v := range c.Responses {
			cp.Responses[k] = v
		}
	}
	if c.Config.Weights != nil {
		cp.Config.Weights = make(map[string]float64, len(c.Config.Weights))
		for k, v := range c.Config.Weights {
			cp.Config.Weights[k] = v
		}
	}
	return &cp
}
