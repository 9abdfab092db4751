package rpc

import (
	"net/http"

	"ringfund/native/fund"
)

type payContributionParams struct {
	TermID uint64 `json:"termId"`
	Payer  string `json:"payer"`
}

type payOnBehalfParams struct {
	TermID      uint64 `json:"termId"`
	Payer       string `json:"payer"`
	Participant string `json:"participant"`
}

type withdrawFundToParams struct {
	TermID      uint64 `json:"termId"`
	Participant string `json:"participant"`
	Recipient   string `json:"recipient"`
}

type fundResult struct {
	TermID             uint64   `json:"termId"`
	Owner              string   `json:"owner"`
	State              string   `json:"state"`
	CurrentCycle       uint64   `json:"currentCycle"`
	CycleStartedAt     int64    `json:"cycleStartedAt"`
	ClosedAt           int64    `json:"closedAt,omitempty"`
	ContributionAmount string   `json:"contributionAmount"`
	ContributionPeriod int64    `json:"contributionPeriodSeconds"`
	CycleTime          int64    `json:"cycleTimeSeconds"`
	Members            []string `json:"members"`
	Beneficiaries      []string `json:"beneficiaries"`
	StablePool         string   `json:"stablePool"`
	OutstandingStable  string   `json:"outstandingStable"`
}

type fundParticipantResult struct {
	Address            string `json:"address"`
	PaidThisCycle      bool   `json:"paidThisCycle"`
	DefaultedThisCycle bool   `json:"defaultedThisCycle"`
	AutoPay            bool   `json:"autoPay"`
	Expelled           bool   `json:"expelled"`
	ExemptThisCycle    bool   `json:"exemptThisCycle"`
	WasBeneficiary     bool   `json:"wasBeneficiary"`
	AwardedPool        string `json:"awardedPool"`
	FrozenPot          bool   `json:"frozenPot"`
}

type beneficiaryResult struct {
	Beneficiary string `json:"beneficiary"`
}

type payoutResult struct {
	Paid string `json:"paid"`
}

func fundResultFrom(f *fund.Fund) fundResult {
	return fundResult{
		TermID:             f.TermID,
		Owner:              f.Owner.String(),
		State:              f.State.String(),
		CurrentCycle:       f.CurrentCycle,
		CycleStartedAt:     f.CycleStartedAt,
		ClosedAt:           f.ClosedAt,
		ContributionAmount: bigString(f.ContributionAmount),
		ContributionPeriod: f.ContributionPeriod,
		CycleTime:          f.CycleTime,
		Members:            addressStrings(f.Members),
		Beneficiaries:      addressStrings(f.Beneficiaries),
		StablePool:         bigString(f.StablePool),
		OutstandingStable:  bigString(f.OutstandingStable),
	}
}

func (s *Server) handlePayContribution(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params payContributionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	payer, rpcErr := parseAddress("payer", params.Payer)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.funds.PayContribution(params.TermID, payer); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handlePayContributionOnBehalfOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params payOnBehalfParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	payer, rpcErr := parseAddress("payer", params.Payer)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	participant, rpcErr := parseAddress("participant", params.Participant)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.funds.PayContributionOnBehalfOf(params.TermID, payer, participant); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleToggleAutoPay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	enabled, err := s.funds.ToggleAutoPay(params.TermID, participant)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"autoPay": enabled})
}

func (s *Server) handleCloseFundingPeriod(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.funds.CloseFundingPeriod(params.TermID); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	f, err := s.funds.Info(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, fundResultFrom(f))
}

func (s *Server) handleWithdrawFund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	paid, err := s.funds.WithdrawFund(params.TermID, participant)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, payoutResult{Paid: bigString(paid)})
}

func (s *Server) handleWithdrawFundOnAnotherWallet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawFundToParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	participant, rpcErr := parseAddress("participant", params.Participant)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	recipient, rpcErr := parseAddress("recipient", params.Recipient)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	paid, err := s.funds.WithdrawFundTo(params.TermID, participant, recipient)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, payoutResult{Paid: bigString(paid)})
}

func (s *Server) handleEmptyFundAfterEnd(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	swept, err := s.funds.EmptyFundAfterEnd(params.TermID, caller)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, sweepResult{Swept: bigString(swept)})
}

func (s *Server) handleGetFund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	f, err := s.funds.Info(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, fundResultFrom(f))
}

func (s *Server) handleGetFundParticipant(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	p, err := s.funds.ParticipantOf(params.TermID, participant)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, fundParticipantResult{
		Address:            p.Address.String(),
		PaidThisCycle:      p.PaidThisCycle,
		DefaultedThisCycle: p.DefaultedThisCycle,
		AutoPay:            p.AutoPay,
		Expelled:           p.Expelled,
		ExemptThisCycle:    p.ExemptThisCycle,
		WasBeneficiary:     p.WasBeneficiary,
		AwardedPool:        bigString(p.AwardedPool),
		FrozenPot:          p.FrozenPot,
	})
}

func (s *Server) handleCurrentBeneficiary(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	beneficiary, err := s.funds.Beneficiary(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, beneficiaryResult{Beneficiary: beneficiary.String()})
}

func (s *Server) handleIsExempted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	exempt, err := s.funds.IsExempted(params.TermID, participant)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"exempted": exempt})
}

func (s *Server) handleWasExpelled(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	expelled, err := s.funds.WasExpelled(params.TermID, participant)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"expelled": expelled})
}
