package booking

import (
	"fmt"

	"kuraos/models"
)

// Step is a state of the reservation wizard.
type Step string

const (
	StepSelectService Step = "SELECT_SERVICE"
	StepSelectSlot    Step = "SELECT_SLOT"
	StepEnterDetails  Step = "ENTER_DETAILS"
	StepAwaitPayment  Step = "AWAIT_PAYMENT"
	StepDone          Step = "DONE"
)

// transitions lists every legal edge. AWAIT_PAYMENT -> ENTER_DETAILS is the
// abandonment edge; ENTER_DETAILS -> SELECT_SLOT is taken when the ledger
// rejects the reservation.
var transitions = map[Step][]Step{
	StepSelectService: {StepSelectSlot},
	StepSelectSlot:    {StepSelectSlot, StepEnterDetails},
	StepEnterDetails:  {StepSelectSlot, StepEnterDetails, StepAwaitPayment, StepDone},
	StepAwaitPayment:  {StepEnterDetails, StepDone},
	StepDone:          {},
}

func canTransition(from, to Step) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func guardTransition(from, to Step) error {
	if canTransition(from, to) {
		return nil
	}
	return models.NewSagaError(models.ErrInvalidTransition,
		fmt.Sprintf("cannot move from %s to %s", from, to))
}

func parseStep(raw string) Step {
	switch s := Step(raw); s {
	case StepSelectService, StepSelectSlot, StepEnterDetails, StepAwaitPayment, StepDone:
		return s
	default:
		return StepSelectService
	}
}
