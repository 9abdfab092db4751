package term

import (
	"math/big"
	"strconv"

	"ringfund/core/types"
	"ringfund/crypto"
)

const (
	EventTypeCreated         = "ring.term.created"
	EventTypeJoined          = "ring.term.joined"
	EventTypeFilled          = "ring.term.filled"
	EventTypeStarted         = "ring.term.started"
	EventTypeExpired         = "ring.term.expired"
	EventTypeClosed          = "ring.term.closed"
	EventTypeCollateralSwept = "ring.term.collateral_swept"
)

type termEvent struct {
	evt *types.Event
}

func (e termEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e termEvent) Event() *types.Event { return e.evt }

func newCreatedEvent(termID uint64, owner crypto.Address, totalParticipants uint64) termEvent {
	return termEvent{evt: &types.Event{
		Type: EventTypeCreated,
		Attributes: map[string]string{
			"termId":       strconv.FormatUint(termID, 10),
			"owner":        owner.String(),
			"participants": strconv.FormatUint(totalParticipants, 10),
		},
	}}
}

func newJoinedEvent(termID uint64, participant crypto.Address, position uint64) termEvent {
	return termEvent{evt: &types.Event{
		Type: EventTypeJoined,
		Attributes: map[string]string{
			"termId":      strconv.FormatUint(termID, 10),
			"participant": participant.String(),
			"position":    strconv.FormatUint(position, 10),
		},
	}}
}

func newFilledEvent(termID uint64) termEvent {
	return termEvent{evt: &types.Event{
		Type: EventTypeFilled,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
		},
	}}
}

func newStartedEvent(termID uint64) termEvent {
	return termEvent{evt: &types.Event{
		Type: EventTypeStarted,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
		},
	}}
}

func newExpiredEvent(termID uint64) termEvent {
	return termEvent{evt: &types.Event{
		Type: EventTypeExpired,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
		},
	}}
}

func newClosedEvent(termID uint64) termEvent {
	return termEvent{evt: &types.Event{
		Type: EventTypeClosed,
		Attributes: map[string]string{
			"termId": strconv.FormatUint(termID, 10),
		},
	}}
}

func newCollateralSweptEvent(termID uint64, recipient crypto.Address, amount *big.Int) termEvent {
	value := "0"
	if amount != nil {
		value = amount.String()
	}
	return termEvent{evt: &types.Event{
		Type: EventTypeCollateralSwept,
		Attributes: map[string]string{
			"termId":    strconv.FormatUint(termID, 10),
			"recipient": recipient.String(),
			"amount":    value,
		},
	}}
}
