package rpc

import (
	"net/http"

	"ringfund/native/yield"
)

type termMemberParams struct {
	TermID uint64 `json:"termId"`
	Member string `json:"member"`
}

type claimYieldForParams struct {
	TermID uint64 `json:"termId"`
	Caller string `json:"caller"`
	Member string `json:"member"`
}

type claimResult struct {
	Claimed string `json:"claimed"`
}

type pendingYieldResult struct {
	Pending string `json:"pending"`
}

type generatedYieldResult struct {
	Generated string `json:"generated"`
}

type apyResult struct {
	APYBps uint64 `json:"apyBps"`
}

type yieldPositionResult struct {
	Member    string `json:"member"`
	Principal string `json:"principal"`
	Shares    string `json:"shares"`
	Claimed   string `json:"claimed"`
}

type yieldInfoResult struct {
	TermID         uint64 `json:"termId"`
	Provider       string `json:"provider"`
	FractionBps    uint64 `json:"fractionBps"`
	StartedAt      int64  `json:"startedAt,omitempty"`
	Active         bool   `json:"active"`
	Released       bool   `json:"released"`
	TotalPrincipal string `json:"totalPrincipal"`
	TotalShares    string `json:"totalShares"`
	TotalClaimed   string `json:"totalClaimed"`
}

type yieldLockParams struct {
	Locked bool `json:"locked"`
}

type updateProviderParams struct {
	TermID   uint64 `json:"termId"`
	Provider string `json:"provider"`
}

func yieldInfoFrom(ty *yield.TermYield) yieldInfoResult {
	return yieldInfoResult{
		TermID:         ty.TermID,
		Provider:       addressString(ty.Provider),
		FractionBps:    ty.FractionBps,
		StartedAt:      ty.StartedAt,
		Active:         ty.Active,
		Released:       ty.Released,
		TotalPrincipal: bigString(ty.TotalPrincipal),
		TotalShares:    bigString(ty.TotalShares),
		TotalClaimed:   bigString(ty.TotalClaimed),
	}
}

func (s *Server) handleClaimYield(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termMemberParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	member, rpcErr := parseAddress("member", params.Member)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	claimed, err := s.yields.ClaimAvailableYield(params.TermID, member)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.RecordYieldClaim()
	writeResult(w, req.ID, claimResult{Claimed: bigString(claimed)})
}

func (s *Server) handleClaimYieldFor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimYieldForParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, rpcErr := parseAddress("caller", params.Caller)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	member, rpcErr := parseAddress("member", params.Member)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	claimed, err := s.yields.ClaimYieldFor(params.TermID, caller, member)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.RecordYieldClaim()
	writeResult(w, req.ID, claimResult{Claimed: bigString(claimed)})
}

func (s *Server) handlePendingYield(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termMemberParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	member, rpcErr := parseAddress("member", params.Member)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	pending, err := s.yields.PendingYield(params.TermID, member)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, pendingYieldResult{Pending: bigString(pending)})
}

func (s *Server) handleTotalYieldGenerated(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	generated, err := s.yields.TotalYieldGenerated(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, generatedYieldResult{Generated: bigString(generated)})
}

func (s *Server) handleTermAPY(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	apy, err := s.yields.TermAPY(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, apyResult{APYBps: apy})
}

func (s *Server) handleUserAPY(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termMemberParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	member, rpcErr := parseAddress("member", params.Member)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	apy, err := s.yields.UserAPY(params.TermID, member)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, apyResult{APYBps: apy})
}

func (s *Server) handleGetYieldPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termMemberParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	member, rpcErr := parseAddress("member", params.Member)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	pos, err := s.yields.PositionOf(params.TermID, member)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	result := yieldPositionResult{Member: member.String(), Principal: "0", Shares: "0", Claimed: "0"}
	if pos != nil {
		result.Principal = bigString(pos.Principal)
		result.Shares = bigString(pos.Shares)
		result.Claimed = bigString(pos.Claimed)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetYieldInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params termIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	info, err := s.yields.TermInfo(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, yieldInfoFrom(info))
}

func (s *Server) handleSetYieldLock(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params yieldLockParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.yields.SetLocked(params.Locked)
	writeResult(w, req.ID, map[string]bool{"locked": s.yields.Locked()})
}

func (s *Server) handleUpdateYieldProvider(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params updateProviderParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	provider, rpcErr := parseAddress("provider", params.Provider)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	t, err := s.terms.Info(params.TermID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	if err := s.yields.UpdateProvider(params.TermID, provider, t.Members); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"provider": provider.String()})
}
