package rpc

import (
	"net/http"

	"ringfund/native/term"
)

type createTermParams struct {
	Owner              string `json:"owner"`
	TotalParticipants  uint64 `json:"totalParticipants"`
	RegistrationPeriod int64  `json:"registrationPeriodSeconds"`
	ContributionAmount string `json:"contributionAmount"`
	ContributionPeriod int64  `json:"contributionPeriodSeconds"`
	CycleTime          int64  `json:"cycleTimeSeconds"`
	YieldProvider      string `json:"yieldProvider,omitempty"`
}

type createTermResult struct {
	TermID uint64 `json:"termId"`
}

type joinTermParams struct {
	TermID      uint64 `json:"termId"`
	Participant string `json:"participant"`
	Transferred string `json:"transferred"`
	OptInYield  bool   `json:"optInYield"`
}

type termIDParams struct {
	TermID uint64 `json:"termId"`
}

type termCallerParams struct {
	TermID uint64 `json:"termId"`
	Caller string `json:"caller"`
}

type toggleYieldOptInParams struct {
	TermID      uint64 `json:"termId"`
	Participant string `json:"participant"`
	OptIn       bool   `json:"optIn"`
}

type termResult struct {
	TermID             uint64   `json:"termId"`
	Owner              string   `json:"owner"`
	State              string   `json:"state"`
	TotalParticipants  uint64   `json:"totalParticipants"`
	RegistrationPeriod int64    `json:"registrationPeriodSeconds"`
	ContributionAmount string   `json:"contributionAmount"`
	ContributionPeriod int64    `json:"contributionPeriodSeconds"`
	CycleTime          int64    `json:"cycleTimeSeconds"`
	YieldProvider      string   `json:"yieldProvider,omitempty"`
	CreatedAt          int64    `json:"createdAt"`
	StartedAt          int64    `json:"startedAt,omitempty"`
	EndedAt            int64    `json:"endedAt,omitempty"`
	Members            []string `json:"members"`
}

type termListResult struct {
	TermIDs []uint64 `json:"termIds"`
}

type memberTermsParams struct {
	Address string `json:"address"`
}

type memberTermsResult struct {
	TermIDs      []uint64 `json:"termIds"`
	ExpelledFrom []uint64 `json:"expelledFrom"`
}

type startNewCycleResult struct {
	Closed bool `json:"closed"`
}

type sweepResult struct {
	Swept string `json:"swept"`
}

func termResultFrom(t *term.Term) termResult {
	return termResult{
		TermID:             t.ID,
		Owner:              t.Owner.String(),
		State:              t.State.String(),
		TotalParticipants:  t.TotalParticipants,
		RegistrationPeriod: t.RegistrationPeriod,
		ContributionAmount: bigString(t.ContributionAmount),
		ContributionPeriod: t.ContributionPeriod,
		CycleTime:          t.CycleTime,
		YieldProvider:      addressString(t.YieldProvider),
		CreatedAt:          t.CreatedAt,
		StartedAt:          t.StartedAt,
		EndedAt:            t.EndedAt,
		Members:            addressStrings(t.Members),
	}
}

func (s *Server) handleCreateTerm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createTermParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	owner, rpcErr := parseAddress("owner", params.Owner)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	amount, rpcErr := parseAmount("contributionAmount", params.ContributionAmount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	provider, rpcErr := parseOptionalAddress("yieldProvider", params.YieldProvider)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	termID, err := s.terms.CreateTerm(owner, term.Params{
		TotalParticipants:  params.TotalParticipants,
		RegistrationPeriod: params.RegistrationPeriod,
		ContributionAmount: amount,
		ContributionPeriod: params.ContributionPeriod,
		CycleTime:          params.CycleTime,
		YieldProvider:      provider,
	})
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, createTermResult{TermID: termID})
}

func (s *Server) handleJoinTerm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params joinTermParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	participant, rpcErr := parseAddress("participant", params.Participant)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	transferred, rpcErr := parseAmount("transferred", params.Transferred)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.terms.JoinTerm(params.TermID, participant, transferred, params.OptInYield); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	t, err := s.terms.Info(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, termResultFrom(t))
}

func (s *Server) handleStartTerm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.terms.StartTerm(params.TermID); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	t, err := s.terms.Info(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, termResultFrom(t))
}

func (s *Server) handleExpireTerm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.terms.ExpireTerm(params.TermID); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	t, err := s.terms.Info(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, termResultFrom(t))
}

func (s *Server) handleStartNewCycle(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	closed, err := s.terms.StartNewCycle(params.TermID, caller)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, startNewCycleResult{Closed: closed})
}

func (s *Server) handleToggleYieldOptIn(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params toggleYieldOptInParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	participant, rpcErr := parseAddress("participant", params.Participant)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.terms.ToggleYieldOptIn(params.TermID, participant, params.OptIn); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"optIn": params.OptIn})
}

func (s *Server) handleGetTerm(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	t, err := s.terms.Info(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, termResultFrom(t))
}

func (s *Server) handleListTerms(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	ids, err := s.store.TermIDs()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, termListResult{TermIDs: ids})
}

func (s *Server) handleMemberTerms(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params memberTermsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	member, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	memberships, err := s.store.MembershipsOf(member)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	expulsions, err := s.store.ExpulsionsOf(member)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, memberTermsResult{TermIDs: memberships, ExpelledFrom: expulsions})
}
