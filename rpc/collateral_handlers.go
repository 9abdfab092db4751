package rpc

import (
	"math/big"
	"net/http"
	"time"

	"ringfund/native/collateral"
)

type minCollateralParams struct {
	TermID   uint64 `json:"termId"`
	Position uint64 `json:"position"`
}

type minCollateralResult struct {
	MinDeposit string `json:"minDeposit"`
}

type termParticipantParams struct {
	TermID      uint64 `json:"termId"`
	Participant string `json:"participant"`
}

type withdrawResult struct {
	Released string `json:"released"`
}

type collateralPositionResult struct {
	Participant  string `json:"participant"`
	Deposited    string `json:"deposited"`
	InVault      string `json:"inVault"`
	PaymentBank  string `json:"paymentBank"`
	IsMember     bool   `json:"isMember"`
	Expelled     bool   `json:"expelled"`
	OptedInYield bool   `json:"optedInYield"`
}

type collateralStateResult struct {
	State string `json:"state"`
}

func collateralPositionFrom(pos *collateral.Position) collateralPositionResult {
	return collateralPositionResult{
		Participant:  pos.Participant.String(),
		Deposited:    bigString(pos.Deposited),
		InVault:      bigString(pos.InVault),
		PaymentBank:  bigString(pos.PaymentBank),
		IsMember:     pos.IsMember,
		Expelled:     pos.Expelled,
		OptedInYield: pos.OptedInYG,
	}
}

func (s *Server) handleMinCollateralToDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params minCollateralParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	min, err := s.collateral.MinDeposit(params.TermID, params.Position)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, minCollateralResult{MinDeposit: bigString(min)})
}

func (s *Server) handleWithdrawCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termParticipantParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	participant, rpcErr := parseAddress("participant", params.Participant)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	released, err := s.collateral.Withdraw(params.TermID, participant)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, withdrawResult{Released: bigString(released)})
}

func (s *Server) handleEmptyCollateralAfterEnd(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termCallerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	swept, err := s.terms.EmptyCollateralAfterEnd(params.TermID, caller)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, sweepResult{Swept: bigString(swept)})
}

type setOraclePriceParams struct {
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
}

// handleSetOraclePrice drives the manual feed. The quote timestamp is the
// server clock, so the configured max quote age applies from this moment.
func (s *Server) handleSetOraclePrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.feed == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "oracle feed not configured", nil)
		return
	}
	var params setOraclePriceParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	num, rpcErr := parseAmount("numerator", params.Numerator)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	denom, rpcErr := parseAmount("denominator", params.Denominator)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if num.Sign() <= 0 || denom.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "rate must be positive", nil)
		return
	}
	rate := new(big.Rat).SetFrac(num, denom)
	s.feed.SetPrice(rate, time.Now())
	writeResult(w, req.ID, map[string]string{"rate": rate.RatString()})
}

func (s *Server) handleGetCollateralPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termParticipantParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	participant, rpcErr := parseAddress("participant", params.Participant)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	pos, err := s.collateral.PositionOf(params.TermID, participant)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, collateralPositionFrom(pos))
}

func (s *Server) handleGetCollateralState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	state, err := s.collateral.StateOf(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, collateralStateResult{State: state.String()})
}
