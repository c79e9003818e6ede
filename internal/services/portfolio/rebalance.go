package portfolioservice

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"hermes/internal/domain/portfolio"
)

// SetAllocationTargets replaces the configured allocation targets
func (m *Manager) SetAllocationTargets(targets []portfolio.AllocationTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return err
	}
	m.targets = make([]portfolio.AllocationTarget, len(targets))
	copy(m.targets, targets)
	return nil
}

// GetRebalanceActions compares each target to the asset's current share
// of equity and sizes a trade to close the USD gap. Deviations past the
// tolerance are HIGH priority and sort first.
func (m *Manager) GetRebalanceActions() ([]portfolio.RebalanceAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureInitialized(); err != nil {
		return nil, err
	}

	var actions []portfolio.RebalanceAction
	for _, target := range m.targets {
		current := 0.0
		if b, ok := m.balances[target.Asset]; ok {
			current = b.AllocationPercent
		}

		deviation := math.Abs(current - target.TargetPercent)
		if deviation <= m.cfg.RebalanceThresholdPct {
			continue
		}

		side := portfolio.RebalanceBuy
		if current > target.TargetPercent {
			side = portfolio.RebalanceSell
		}
		priority := portfolio.PriorityMedium
		if deviation > m.cfg.TolerancePct {
			priority = portfolio.PriorityHigh
		}

		gapUSD := m.equity.Mul(decimal.NewFromFloat(deviation / 100))
		actions = append(actions, portfolio.RebalanceAction{
			Asset:          target.Asset,
			Side:           side,
			AmountUSD:      gapUSD,
			CurrentPercent: current,
			TargetPercent:  target.TargetPercent,
			Deviation:      deviation,
			Priority:       priority,
		})
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority == portfolio.PriorityHigh && actions[j].Priority != portfolio.PriorityHigh
	})
	return actions, nil
}
