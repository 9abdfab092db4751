package yield

import (
	"math/big"
	"strconv"

	"ringfund/core/types"
	"ringfund/crypto"
)

const (
	EventTypeDeposited       = "ring.yield.deposited"
	EventTypeClaimed         = "ring.yield.claimed"
	EventTypeRecalled        = "ring.yield.recalled"
	EventTypeReleased        = "ring.yield.released"
	EventTypeProviderUpdated = "ring.yield.provider_updated"
)

type yieldEvent struct {
	evt *types.Event
}

func (e yieldEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e yieldEvent) Event() *types.Event { return e.evt }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newDepositedEvent(termID uint64, member crypto.Address, amount, shares *big.Int) yieldEvent {
	return yieldEvent{evt: &types.Event{
		Type: EventTypeDeposited,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
			"member": member.String(),
			"amount": amountString(amount),
			"shares": amountString(shares),
		},
	}}
}

func newClaimedEvent(termID uint64, member crypto.Address, amount *big.Int) yieldEvent {
	return yieldEvent{evt: &types.Event{
		Type: EventTypeClaimed,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
			"member": member.String(),
			"amount": amountString(amount),
		},
	}}
}

func newRecalledEvent(termID uint64, member crypto.Address, requested, returned *big.Int) yieldEvent {
	return yieldEvent{evt: &types.Event{
		Type: EventTypeRecalled,
		Attributes: map[string]string{
			"termId":    strconv.FormatUint(termID, 10),
			"member":    member.String(),
			"requested": amountString(requested),
			"returned":  amountString(returned),
		},
	}}
}

func newReleasedEvent(termID uint64) yieldEvent {
	return yieldEvent{evt: &types.Event{
		Type: EventTypeReleased,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
		},
	}}
}

func newProviderUpdatedEvent(termID uint64, oldProvider, newProvider crypto.Address) yieldEvent {
	return yieldEvent{evt: &types.Event{
		Type: EventTypeProviderUpdated,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
			"old":    oldProvider.String(),
			"new":    newProvider.String(),
		},
	}}
}
