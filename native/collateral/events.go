package collateral

import (
	"math/big"
	"strconv"

	"ringfund/core/types"
	"ringfund/crypto"
)

const (
	EventTypeDeposited  = "ring.collateral.deposited"
	EventTypeLiquidated = "ring.collateral.liquidated"
	EventTypeSeized     = "ring.collateral.seized"
	EventTypeWithdrawn  = "ring.collateral.withdrawn"
	EventTypeSwept      = "ring.collateral.swept"
)

type collateralEvent struct {
	evt *types.Event
}

func (e collateralEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e collateralEvent) Event() *types.Event { return e.evt }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newDepositedEvent(termID uint64, participant crypto.Address, amount *big.Int) collateralEvent {
	return collateralEvent{evt: &types.Event{
		Type: EventTypeDeposited,
		Attributes: map[string]string{
			"termId":      strconv.FormatUint(termID, 10),
			"participant": participant.String(),
			"amount":      formatAmount(amount),
		},
	}}
}

func newLiquidatedEvent(termID uint64, defaulter, beneficiary crypto.Address, stableOwed, seizedRNG *big.Int) collateralEvent {
	return collateralEvent{evt: &types.Event{
		Type: EventTypeLiquidated,
		Attributes: map[string]string{
			"termId":      strconv.FormatUint(termID, 10),
			"defaulter":   defaulter.String(),
			"beneficiary": beneficiary.String(),
			"stableOwed":  formatAmount(stableOwed),
			"seizedRng":   formatAmount(seizedRNG),
		},
	}}
}

func newSeizedEvent(termID uint64, defaulter crypto.Address, seized *big.Int) collateralEvent {
	return collateralEvent{evt: &types.Event{
		Type: EventTypeSeized,
		Attributes: map[string]string{
			"termId":    strconv.FormatUint(termID, 10),
			"defaulter": defaulter.String(),
			"seizedRng": formatAmount(seized),
		},
	}}
}

func newSweptEvent(termID uint64, recipient crypto.Address, amount *big.Int) collateralEvent {
	return collateralEvent{evt: &types.Event{
		Type: EventTypeSwept,
		Attributes: map[string]string{
			"termId":    strconv.FormatUint(termID, 10),
			"recipient": recipient.String(),
			"amount":    formatAmount(amount),
		},
	}}
}

func newWithdrawnEvent(termID uint64, participant crypto.Address, amount *big.Int) collateralEvent {
	return collateralEvent{evt: &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"termId":      strconv.FormatUint(termID, 10),
			"participant": participant.String(),
			"amount":      formatAmount(amount),
		},
	}}
}
