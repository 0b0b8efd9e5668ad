package comms

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

const defaultCollaborationTimeout = 30 * time.Second

// RequestCollaboration fans a payload out to every participant as a request
// message and opens a collection window. The collaboration ID is returned
// immediately; the outcome resolves asynchronously as responses arrive,
// observable through GetCollaboration and the collaboration events.
func (f *Framework) RequestCollaboration(ctx context.Context, initiator string, participants []string, payload any, config types.CollaborationConfig) (string, error) {
	if len(participants) == 0 {
		return "", types.NewError(types.ErrNoParticipants, "collaboration has no participants")
	}
	if config.Strategy == "" {
		config.Strategy = types.AggregateAll
	}
	switch config.Strategy {
	case types.AggregateAll, types.AggregateFirst, types.AggregateMajority, types.AggregateWeighted:
	default:
		return "", types.Errorf(types.ErrNoParticipants, "unknown aggregation strategy %q", config.Strategy)
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultCollaborationTimeout
	}
	if config.MinResponses > len(participants) {
		config.MinResponses = len(participants)
	}

	collab := &types.Collaboration{
		ID:           uuid.New().String(),
		Initiator:    initiator,
		Participants: participants,
		Config:       config,
		Responses:    make(map[string]any),
		Status:       types.CollaborationPending,
		StartedAt:    time.Now(),
	}

	f.mu.Lock()
	f.collabs[collab.ID] = collab.Clone()
	f.timers[collab.ID] = time.AfterFunc(config.Timeout, func() {
		f.expire(collab.ID)
	})
	f.mu.Unlock()

	f.logger.Info("collaboration started",
		zap.String("collaboration_id", collab.ID),
		zap.String("initiator", initiator),
		zap.String("strategy", string(config.Strategy)),
		zap.Int("participants", len(participants)),
	)
	f.publish(types.Event{
		Type: types.EventCollaborationStarted, CollaborationID: collab.ID,
		Data: map[string]any{"strategy": string(config.Strategy), "participants": len(participants)},
	})

	for _, participant := range participants {
		_, err := f.Send(ctx, &types.Message{
			From:            initiator,
			To:              participant,
			Type:            types.MessageRequest,
			Payload:         payload,
			CollaborationID: collab.ID,
		}, 0)
		if err != nil {
			f.logger.Warn("collaboration request not queued",
				zap.String("collaboration_id", collab.ID),
				zap.String("participant", participant),
				zap.Error(err),
			)
		}
	}
	return collab.ID, nil
}

// Respond records one participant's response. Responses from unknown
// participants, duplicates, and responses arriving after the collaboration
// reached a terminal state are dropped.
func (f *Framework) Respond(collaborationID, participant string, response any) {
	f.mu.Lock()
	collab, exists := f.collabs[collaborationID]
	if !exists || collab.Status.Terminal() {
		f.mu.Unlock()
		return
	}
	if !hasParticipant(collab.Participants, participant) {
		f.mu.Unlock()
		return
	}
	if _, dup := collab.Responses[participant]; dup {
		f.mu.Unlock()
		return
	}
	collab.Responses[participant] = response

	if !f.sufficientLocked(collab) {
		f.mu.Unlock()
		return
	}
	collab.Status = types.CollaborationCompleted
	collab.Result = aggregate(collab)
	collab.CompletedAt = time.Now()
	responses := len(collab.Responses)
	f.stopTimerLocked(collaborationID)
	f.mu.Unlock()

	f.logger.Info("collaboration completed",
		zap.String("collaboration_id", collaborationID),
		zap.Int("responses", responses),
	)
	f.publish(types.Event{
		Type: types.EventCollaborationCompleted, CollaborationID: collaborationID,
		Data: map[string]any{"responses": responses},
	})
}

// sufficientLocked reports whether the collected responses satisfy the
// strategy's completion rule. Caller holds f.mu.
func (f *Framework) sufficientLocked(collab *types.Collaboration) bool {
	total := len(collab.Participants)
	got := len(collab.Responses)

	switch collab.Config.Strategy {
	case types.AggregateFirst:
		return got >= 1
	case types.AggregateMajority:
		if got == total {
			return true
		}
		// Early completion once one value outvotes everything the
		// remaining participants could still cast.
		_, top := tallyVotes(collab.Participants, collab.Responses)
		return top > total-top
	case types.AggregateWeighted:
		// Same rule as all, unless an explicit response floor lets the
		// collaboration close early.
		if collab.Config.MinResponses > 0 && got >= collab.Config.MinResponses {
			return true
		}
		return got == total
	default: // all
		return got == total
	}
}

// expire closes the collection window: enough responses yield a partial
// result, too few an insufficient outcome.
func (f *Framework) expire(collaborationID string) {
	f.mu.Lock()
	collab, exists := f.collabs[collaborationID]
	if !exists || collab.Status.Terminal() {
		f.mu.Unlock()
		return
	}
	delete(f.timers, collaborationID)

	minResponses := collab.Config.MinResponses
	if minResponses <= 0 {
		minResponses = 1
	}

	var evt types.Event
	if len(collab.Responses) >= minResponses {
		collab.Status = types.CollaborationPartial
		collab.Result = aggregate(collab)
		evt = types.Event{
			Type: types.EventCollaborationPartial, CollaborationID: collaborationID,
			Data: map[string]any{"responses": len(collab.Responses)},
		}
	} else {
		collab.Status = types.CollaborationInsufficient
		evt = types.Event{
			Type: types.EventCollaborationPartial, CollaborationID: collaborationID,
			Data: map[string]any{"responses": len(collab.Responses), "insufficient": true},
		}
	}
	collab.CompletedAt = time.Now()
	status := collab.Status
	f.mu.Unlock()

	f.logger.Info("collaboration window closed",
		zap.String("collaboration_id", collaborationID),
		zap.String("status", string(status)),
	)
	f.publish(evt)
}

// CancelCollaboration cancels a pending collaboration. Terminal
// collaborations are left untouched.
func (f *Framework) CancelCollaboration(collaborationID string) error {
	f.mu.Lock()
	collab, exists := f.collabs[collaborationID]
	if !exists {
		f.mu.Unlock()
		return types.Errorf(types.ErrCollaborationNotFound, "collaboration %s not found", collaborationID)
	}
	if collab.Status.Terminal() {
		f.mu.Unlock()
		return types.Errorf(types.ErrInvalidTransition, "collaboration %s already %s", collaborationID, collab.Status)
	}
	collab.Status = types.CollaborationCancelled
	collab.CompletedAt = time.Now()
	f.stopTimerLocked(collaborationID)
	f.mu.Unlock()

	f.logger.Info("collaboration cancelled", zap.String("collaboration_id", collaborationID))
	f.publish(types.Event{Type: types.EventCollaborationCancelled, CollaborationID: collaborationID})
	return nil
}

// GetCollaboration retrieves a copy of a collaboration by ID.
func (f *Framework) GetCollaboration(collaborationID string) (*types.Collaboration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	collab, exists := f.collabs[collaborationID]
	if !exists {
		return nil, types.Errorf(types.ErrCollaborationNotFound, "collaboration %s not found", collaborationID)
	}
	return collab.Clone(), nil
}

func (f *Framework) stopTimerLocked(collaborationID string) {
	if timer, exists := f.timers[collaborationID]; exists {
		timer.Stop()
		delete(f.timers, collaborationID)
	}
}

// aggregate combines collected responses per the collaboration's strategy.
// Caller holds f.mu.
func aggregate(collab *types.Collaboration) any {
	switch collab.Config.Strategy {
	case types.AggregateFirst:
		// Exactly one response is collected before completion.
		for _, v := range collab.Responses {
			return v
		}
		return nil

	case types.AggregateMajority:
		winner, _ := tallyVotes(collab.Participants, collab.Responses)
		return winner

	case types.AggregateWeighted:
		var sum, weightSum float64
		for participant, v := range collab.Responses {
			value, ok := asFloat(v)
			if !ok {
				continue
			}
			weight, exists := collab.Config.Weights[participant]
			if !exists {
				weight = 1
			}
			sum += value * weight
			weightSum += weight
		}
		if weightSum == 0 {
			return copyResponses(collab.Responses)
		}
		return sum / weightSum

	default: // all
		return copyResponses(collab.Responses)
	}
}

// tallyVotes counts responses by value and returns the plurality winner and
// its vote count. Votes are walked in participant order, so a tie resolves
// deterministically to the value held by the earliest participant; values
// are compared by their string rendering.
func tallyVotes(participants []string, responses map[string]any) (any, int) {
	counts := make(map[string]int, len(responses))
	for _, p := range participants {
		if v, ok := responses[p]; ok {
			counts[fmt.Sprint(v)]++
		}
	}

	var winner any
	top := 0
	for _, p := range participants {
		v, ok := responses[p]
		if !ok {
			continue
		}
		if n := counts[fmt.Sprint(v)]; n > top {
			winner = v
			top = n
		}
	}
	return winner, top
}

func hasParticipant(participants []string, id string) bool {
	for _, p := range participants {
		if p == id {
			return true
		}
	}
	return false
}

func copyResponses(responses map[string]any) map[string]any {
	out := make(map[string]any, len(responses))
	for k, v := range responses {
		out[k] = v
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
