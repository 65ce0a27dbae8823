package service

import (
	"dialer_backend/internal/dispatch/repository"
	"dialer_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	callerIDBaseScore       = 100
	callerIDAreaCodeBonus   = 50
	callerIDBatchUsePenalty = 20
)

// callerIDSelector scores eligible outbound numbers per destination and
// spreads usage across a batch. One selector lives for exactly one batch.
type callerIDSelector struct {
	numbers  []repository.PhoneNumber
	batchUse map[uuid.UUID]int
}

func newCallerIDSelector(numbers []repository.PhoneNumber) *callerIDSelector {
	return &callerIDSelector{
		numbers:  numbers,
		batchUse: make(map[uuid.UUID]int),
	}
}

// pick returns the best-scoring number for the destination, or nil when no
// number is eligible. Ties keep the earliest number in the stored order, so
// repeated calls are deterministic.
func (sel *callerIDSelector) pick(destination string) *repository.PhoneNumber {
	destArea := phone.AreaCode(destination)

	var best *repository.PhoneNumber
	bestScore := 0
	for i := range sel.numbers {
		n := &sel.numbers[i]
		score := callerIDBaseScore
		if destArea != "" && phone.AreaCode(n.Number) == destArea {
			score += callerIDAreaCodeBonus
		}
		score -= n.DailyCalls
		score -= callerIDBatchUsePenalty * sel.batchUse[n.ID]
		if best == nil || score > bestScore {
			best = n
			bestScore = score
		}
	}
	return best
}

// markUsed records an in-batch use so the next pick deprioritizes the number.
func (sel *callerIDSelector) markUsed(id uuid.UUID) {
	sel.batchUse[id]++
}
