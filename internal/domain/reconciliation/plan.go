package reconciliation

import "github.com/shopspring/decimal"

// Action is what reconciliation does to the primary balance row
type Action string

const (
	ActionNone   Action = "none"
	ActionUpdate Action = "update"
	ActionCreate Action = "create"
)

// Correction is the planned change to a variant's primary row at the target location
type Correction struct {
	Desired   decimal.Decimal
	OthersSum decimal.Decimal
	Current   decimal.Decimal
	Target    decimal.Decimal
	// Delta is Target - Current; the quantity of the corrective movement
	Delta  decimal.Decimal
	Action Action
	// Guarded is true when the raw target was negative and clamped to zero
	Guarded bool
}

// PlanCorrection computes the primary-row target so that total internal stock
// matches desired while rows in other locations stay untouched:
// target = desired - othersSum, floored at zero.
// current is nil when no primary row exists.
func PlanCorrection(desired decimal.Decimal, current *decimal.Decimal, othersSum decimal.Decimal) Correction {
	c := Correction{
		Desired:   desired,
		OthersSum: othersSum,
		Current:   decimal.Zero,
		Target:    desired.Sub(othersSum),
		Action:    ActionNone,
	}
	if c.Target.IsNegative() {
		c.Target = decimal.Zero
		c.Guarded = true
	}

	if current != nil {
		c.Current = *current
		if !c.Current.Equal(c.Target) {
			c.Action = ActionUpdate
		}
	} else if !c.Target.IsZero() {
		c.Action = ActionCreate
	}
	c.Delta = c.Target.Sub(c.Current)
	return c
}
