package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ringfund/native/collateral"
	"ringfund/native/fund"
	"ringfund/native/oracle"
	"ringfund/native/term"
	"ringfund/native/yield"
	"ringfund/observability"
	"ringfund/state/ring"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Engine failure codes. External callers branch on these, so the mapping from
// sentinel errors is stable across releases.
const (
	codeInvalidParameters     = -32100
	codeInsufficientPayment   = -32101
	codeTermFull              = -32102
	codePriceDropped          = -32103
	codeAlreadyPaid           = -32104
	codeNotAParticipant       = -32105
	codeBeneficiaryExempt     = -32106
	codeStillTimeToContribute = -32107
	codeTooEarly              = -32108
	codeNothingToWithdraw     = -32109
	codeNoYieldToWithdraw     = -32110
	codeReentrancy            = -32111
	codeIndexOutOfBounds      = -32112
	codeTooLateToChangeOptIn  = -32113
	codeWrongState            = -32114
	codeTermNotFound          = -32115
	codeTermNotFull           = -32116
	codeNotExpirable          = -32117
	codeNotOwner              = -32118
	codeAlreadyJoined         = -32119
	codeExempted              = -32120
	codePotFrozen             = -32121
	codePriceUnavailable      = -32122
	codeInsufficientBalance   = -32123
	codeNoProvider            = -32124
	codeNotEnrolled           = -32125
	codeYieldLocked           = -32126
	codeModulePaused          = -32127
)

type Server struct {
	terms      *term.Engine
	collateral *collateral.Engine
	funds      *fund.Engine
	yields     *yield.Engine
	store      *ring.Store
	feed       *oracle.ManualFeed

	mu        sync.Mutex
	authToken string
	logger    *slog.Logger
	metrics   *observability.EngineMetrics
}

func NewServer(terms *term.Engine, coll *collateral.Engine, funds *fund.Engine, yields *yield.Engine, store *ring.Store) *Server {
	token := strings.TrimSpace(os.Getenv("RING_RPC_TOKEN"))
	return &Server{
		terms:      terms,
		collateral: coll,
		funds:      funds,
		yields:     yields,
		store:      store,
		authToken:  token,
		logger:     slog.Default(),
		metrics:    observability.Metrics(),
	}
}

// SetAuthToken overrides the token sourced from the environment, typically
// with the value from the config file.
func (s *Server) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authToken = strings.TrimSpace(token)
}

// SetOracleFeed attaches the manual price feed driven by ring_setOraclePrice.
func (s *Server) SetOracleFeed(feed *oracle.ManualFeed) {
	s.feed = feed
}

// SetLogger replaces the default logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) Start(addr string) error {
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder remembers the first status written so the request log and
// metrics can classify the outcome.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	requestID := uuid.NewString()
	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: 0}

	s.dispatch(recorder, r, req)

	status := recorder.status
	if status == 0 {
		status = http.StatusOK
	}
	outcome := "ok"
	if status != http.StatusOK {
		outcome = "error"
	}
	took := time.Since(start)
	s.metrics.ObserveRequest(req.Method, outcome, took)
	s.logger.Info("rpc request",
		"requestId", requestID,
		"method", req.Method,
		"status", status,
		"durationMs", took.Milliseconds(),
	)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "ring_createTerm":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleCreateTerm(w, r, req)
	case "ring_joinTerm":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleJoinTerm(w, r, req)
	case "ring_startTerm":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleStartTerm(w, r, req)
	case "ring_expireTerm":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleExpireTerm(w, r, req)
	case "ring_startNewCycle":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleStartNewCycle(w, r, req)
	case "ring_toggleYieldOptIn":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleToggleYieldOptIn(w, r, req)
	case "ring_getTerm":
		s.handleGetTerm(w, r, req)
	case "ring_listTerms":
		s.handleListTerms(w, r, req)
	case "ring_memberTerms":
		s.handleMemberTerms(w, r, req)
	case "ring_minCollateralToDeposit":
		s.handleMinCollateralToDeposit(w, r, req)
	case "ring_withdrawCollateral":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleWithdrawCollateral(w, r, req)
	case "ring_emptyCollateralAfterEnd":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleEmptyCollateralAfterEnd(w, r, req)
	case "ring_getCollateralPosition":
		s.handleGetCollateralPosition(w, r, req)
	case "ring_getCollateralState":
		s.handleGetCollateralState(w, r, req)
	case "ring_payContribution":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handlePayContribution(w, r, req)
	case "ring_payContributionOnBehalfOf":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handlePayContributionOnBehalfOf(w, r, req)
	case "ring_toggleAutoPay":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleToggleAutoPay(w, r, req)
	case "ring_closeFundingPeriod":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleCloseFundingPeriod(w, r, req)
	case "ring_withdrawFund":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleWithdrawFund(w, r, req)
	case "ring_withdrawFundOnAnotherWallet":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleWithdrawFundOnAnotherWallet(w, r, req)
	case "ring_emptyFundAfterEnd":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleEmptyFundAfterEnd(w, r, req)
	case "ring_getFund":
		s.handleGetFund(w, r, req)
	case "ring_getFundParticipant":
		s.handleGetFundParticipant(w, r, req)
	case "ring_currentBeneficiary":
		s.handleCurrentBeneficiary(w, r, req)
	case "ring_isExempted":
		s.handleIsExempted(w, r, req)
	case "ring_wasExpelled":
		s.handleWasExpelled(w, r, req)
	case "ring_claimYield":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleClaimYield(w, r, req)
	case "ring_claimYieldFor":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleClaimYieldFor(w, r, req)
	case "ring_pendingYield":
		s.handlePendingYield(w, r, req)
	case "ring_totalYieldGenerated":
		s.handleTotalYieldGenerated(w, r, req)
	case "ring_termAPY":
		s.handleTermAPY(w, r, req)
	case "ring_userAPY":
		s.handleUserAPY(w, r, req)
	case "ring_getYieldPosition":
		s.handleGetYieldPosition(w, r, req)
	case "ring_getYieldInfo":
		s.handleGetYieldInfo(w, r, req)
	case "ring_setYieldLock":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSetYieldLock(w, r, req)
	case "ring_setOraclePrice":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSetOraclePrice(w, r, req)
	case "ring_updateYieldProvider":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleUpdateYieldProvider(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	s.mu.Lock()
	token := s.authToken
	s.mu.Unlock()
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if presented == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
