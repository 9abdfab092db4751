package rpc

import (
	"errors"
	"net/http"
	"strconv"

	"ringfund/native/collateral"
	nativecommon "ringfund/native/common"
	"ringfund/native/fund"
	"ringfund/native/term"
	"ringfund/native/yield"
)

// engineError maps a sentinel error from any engine to its HTTP status and
// stable JSON-RPC code. Unknown errors surface as internal server errors.
func engineError(err error) (int, int) {
	switch {
	case errors.Is(err, term.ErrInvalidParameters):
		return http.StatusBadRequest, codeInvalidParameters
	case errors.Is(err, term.ErrNotFound):
		return http.StatusNotFound, codeTermNotFound
	case errors.Is(err, term.ErrTermFull):
		return http.StatusConflict, codeTermFull
	case errors.Is(err, term.ErrNotFull):
		return http.StatusConflict, codeTermNotFull
	case errors.Is(err, term.ErrPriceDropped):
		return http.StatusConflict, codePriceDropped
	case errors.Is(err, term.ErrNotExpirable):
		return http.StatusConflict, codeNotExpirable
	case errors.Is(err, term.ErrTooLateToChangeOptIn):
		return http.StatusConflict, codeTooLateToChangeOptIn
	case errors.Is(err, term.ErrTooEarly), errors.Is(err, fund.ErrTooEarly):
		return http.StatusConflict, codeTooEarly
	case errors.Is(err, term.ErrNotOwner), errors.Is(err, fund.ErrNotOwner):
		return http.StatusForbidden, codeNotOwner
	case errors.Is(err, term.ErrWrongState),
		errors.Is(err, fund.ErrWrongState),
		errors.Is(err, collateral.ErrWrongState),
		errors.Is(err, yield.ErrWrongState):
		return http.StatusConflict, codeWrongState
	case errors.Is(err, collateral.ErrInsufficientPayment):
		return http.StatusBadRequest, codeInsufficientPayment
	case errors.Is(err, collateral.ErrIndexOutOfBounds):
		return http.StatusBadRequest, codeIndexOutOfBounds
	case errors.Is(err, collateral.ErrInsufficientCollateral):
		return http.StatusConflict, codeInsufficientPayment
	case errors.Is(err, collateral.ErrNothingToWithdraw), errors.Is(err, fund.ErrNothingToWithdraw):
		return http.StatusConflict, codeNothingToWithdraw
	case errors.Is(err, collateral.ErrNotMember), errors.Is(err, fund.ErrNotAParticipant):
		return http.StatusForbidden, codeNotAParticipant
	case errors.Is(err, collateral.ErrAlreadyJoined):
		return http.StatusConflict, codeAlreadyJoined
	case errors.Is(err, collateral.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, codePriceUnavailable
	case errors.Is(err, collateral.ErrInsufficientBalance), errors.Is(err, fund.ErrInsufficientBalance):
		return http.StatusConflict, codeInsufficientBalance
	case errors.Is(err, fund.ErrAlreadyPaid):
		return http.StatusConflict, codeAlreadyPaid
	case errors.Is(err, fund.ErrBeneficiaryExempt):
		return http.StatusConflict, codeBeneficiaryExempt
	case errors.Is(err, fund.ErrExempted):
		return http.StatusConflict, codeExempted
	case errors.Is(err, fund.ErrStillTimeToContribute):
		return http.StatusConflict, codeStillTimeToContribute
	case errors.Is(err, fund.ErrPotFrozen):
		return http.StatusConflict, codePotFrozen
	case errors.Is(err, yield.ErrNoProvider):
		return http.StatusBadRequest, codeNoProvider
	case errors.Is(err, yield.ErrNotEnrolled):
		return http.StatusConflict, codeNotEnrolled
	case errors.Is(err, yield.ErrNoYieldToWithdraw):
		return http.StatusConflict, codeNoYieldToWithdraw
	case errors.Is(err, yield.ErrLocked):
		return http.StatusConflict, codeYieldLocked
	case errors.Is(err, nativecommon.ErrReentrancy):
		return http.StatusConflict, codeReentrancy
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, codeModulePaused
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// writeEngineError records the failure in the metrics registry and responds
// with the mapped status and code.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	status, code := engineError(err)
	s.metrics.ObserveError(req.Method, strconv.Itoa(code))
	writeError(w, status, req.ID, code, err.Error(), nil)
}
