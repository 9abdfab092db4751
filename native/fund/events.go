package fund

import (
	"math/big"
	"strconv"

	"ringfund/core/types"
	"ringfund/crypto"
)

const (
	EventTypeContribution  = "ring.fund.contribution"
	EventTypeDefaulted     = "ring.fund.defaulted"
	EventTypeExpelled      = "ring.fund.expelled"
	EventTypeBeneficiary   = "ring.fund.beneficiary"
	EventTypeCycleStarted  = "ring.fund.cycle_started"
	EventTypeFundClosed    = "ring.fund.closed"
	EventTypeFundWithdrawn = "ring.fund.withdrawn"
	EventTypeFundSwept     = "ring.fund.swept"
)

type fundEvent struct {
	evt *types.Event
}

func (e fundEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e fundEvent) Event() *types.Event { return e.evt }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintToString(v uint64) string { return strconv.FormatUint(v, 10) }

func newContributionEvent(termID, cycle uint64, payer, participant crypto.Address, amount *big.Int) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeContribution,
		Attributes: map[string]string{
			"termId":      uintToString(termID),
			"cycle":       uintToString(cycle),
			"payer":       payer.String(),
			"participant": participant.String(),
			"amount":      formatAmount(amount),
		},
	}}
}

func newDefaultedEvent(termID, cycle uint64, participant crypto.Address) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeDefaulted,
		Attributes: map[string]string{
			"termId":      uintToString(termID),
			"cycle":       uintToString(cycle),
			"participant": participant.String(),
		},
	}}
}

func newExpelledEvent(termID, cycle uint64, participant crypto.Address) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeExpelled,
		Attributes: map[string]string{
			"termId":      uintToString(termID),
			"cycle":       uintToString(cycle),
			"participant": participant.String(),
		},
	}}
}

func newBeneficiaryEvent(termID, cycle uint64, beneficiary crypto.Address, amount *big.Int, frozen bool) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeBeneficiary,
		Attributes: map[string]string{
			"termId":      uintToString(termID),
			"cycle":       uintToString(cycle),
			"beneficiary": beneficiary.String(),
			"amount":      formatAmount(amount),
			"frozen":      strconv.FormatBool(frozen),
		},
	}}
}

func newCycleStartedEvent(termID, cycle uint64) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeCycleStarted,
		Attributes: map[string]string{
			"termId": uintToString(termID),
			"cycle":  uintToString(cycle),
		},
	}}
}

func newFundClosedEvent(termID, cycle uint64) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeFundClosed,
		Attributes: map[string]string{
			"termId": uintToString(termID),
			"cycle":  uintToString(cycle),
		},
	}}
}

func newFundWithdrawnEvent(termID uint64, participant, recipient crypto.Address, amount *big.Int) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeFundWithdrawn,
		Attributes: map[string]string{
			"termId":      uintToString(termID),
			"participant": participant.String(),
			"recipient":   recipient.String(),
			"amount":      formatAmount(amount),
		},
	}}
}

func newFundSweptEvent(termID uint64, owner crypto.Address, amount *big.Int) fundEvent {
	return fundEvent{evt: &types.Event{
		Type: EventTypeFundSwept,
		Attributes: map[string]string{
			"termId": uintToString(termID),
			"owner":  owner.String(),
			"amount": formatAmount(amount),
		},
	}}
}
