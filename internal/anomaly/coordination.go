package anomaly

import (
	"github.com/marketsafe/kestrel/internal/domain"
)

// CoordinationStrategy scores how coordinated a creator's activity looks
// with other accounts, in [0,1]. It is a pluggable extension point; no
// cross-creator timing correlation ships with the engine yet.
type CoordinationStrategy interface {
	Score(creatorID string, txs []*domain.Transaction) float64
}

// ZeroCoordination is the default strategy: it never suspects anyone.
type ZeroCoordination struct{}

// Score always returns 0.
func (ZeroCoordination) Score(string, []*domain.Transaction) float64 {
	return 0
}
