package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ringfund/crypto"
	"ringfund/native/collateral"
	"ringfund/native/fund"
	"ringfund/native/oracle"
	"ringfund/native/term"
	"ringfund/native/vault"
	"ringfund/native/yield"
	"ringfund/state/ring"
	"ringfund/storage"
)

const testToken = "test-token"

type testEnv struct {
	server   *Server
	store    *ring.Store
	feed     *oracle.ManualFeed
	vault    *vault.SimVault
	now      int64
	owner    crypto.Address
	members  []crypto.Address
	provider crypto.Address
}

func testAddr(last byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = last
	return crypto.NewAddress(crypto.RingPrefix, buf)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := ring.NewStore(storage.NewMemDB())
	env := &testEnv{
		store:    store,
		feed:     oracle.NewManualFeed("manual"),
		vault:    vault.NewSimVault(),
		now:      1_000_000,
		owner:    testAddr(0xf0),
		members:  []crypto.Address{testAddr(0x01), testAddr(0x02)},
		provider: crypto.ModuleAddress("yieldprovider"),
	}
	nowFn := func() int64 { return env.now }
	env.feed.SetPrice(big.NewRat(1, 1), time.Unix(env.now, 0))

	terms := term.NewEngine(180 * 24 * time.Hour)
	coll := collateral.NewEngine(crypto.ModuleAddress("collateralvault"), 15_000, 10_000)
	funds := fund.NewEngine(crypto.ModuleAddress("fundpool"), 180*24*time.Hour)
	yields := yield.NewEngine(9_000)

	terms.SetState(store)
	terms.SetCollateral(coll)
	terms.SetFund(funds)
	terms.SetYield(yields)
	terms.SetNowFunc(nowFn)

	coll.SetState(store)
	coll.SetTermSource(terms)
	coll.SetOracle(env.feed)
	coll.SetYieldRecall(yields)
	coll.SetMaxQuoteAge(5 * time.Minute)
	coll.SetNowFunc(nowFn)

	funds.SetState(store)
	funds.SetCollateral(coll)
	funds.SetNowFunc(nowFn)

	yields.SetState(store)
	yields.SetCollateral(coll)
	yields.SetNowFunc(nowFn)
	yields.RegisterProvider(env.provider, env.vault)

	for _, addr := range append([]crypto.Address{env.owner}, env.members...) {
		acc, err := store.GetAccount(addr)
		require.NoError(t, err)
		acc.BalanceRNG = big.NewInt(10_000)
		acc.BalanceRUSD = big.NewInt(10_000)
		require.NoError(t, store.PutAccount(addr, acc))
	}

	env.server = NewServer(terms, coll, funds, yields, store)
	env.server.SetAuthToken(testToken)
	env.server.SetOracleFeed(env.feed)
	return env
}

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (env *testEnv) call(t *testing.T, token, method string, params interface{}) (int, testResponse) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func (env *testEnv) createTerm(t *testing.T) uint64 {
	t.Helper()
	status, resp := env.call(t, testToken, "ring_createTerm", createTermParams{
		Owner:              env.owner.String(),
		TotalParticipants:  2,
		RegistrationPeriod: 3_600,
		ContributionAmount: "100",
		ContributionPeriod: 600,
		CycleTime:          1_200,
		YieldProvider:      env.provider.String(),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var result createTermResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	return result.TermID
}

func TestCreateJoinStartFlow(t *testing.T) {
	env := newTestEnv(t)
	termID := env.createTerm(t)
	require.Equal(t, uint64(1), termID)

	// Position 0 owes two contributions, scaled by the 1.5x safety margin.
	status, resp := env.call(t, "", "ring_minCollateralToDeposit", minCollateralParams{TermID: termID, Position: 0})
	require.Equal(t, http.StatusOK, status)
	var min minCollateralResult
	require.NoError(t, json.Unmarshal(resp.Result, &min))
	require.Equal(t, "300", min.MinDeposit)

	status, resp = env.call(t, testToken, "ring_joinTerm", joinTermParams{
		TermID: termID, Participant: env.members[0].String(), Transferred: "400", OptInYield: true,
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = env.call(t, testToken, "ring_joinTerm", joinTermParams{
		TermID: termID, Participant: env.members[1].String(), Transferred: "400",
	})
	require.Equal(t, http.StatusOK, status)
	var joined termResult
	require.NoError(t, json.Unmarshal(resp.Result, &joined))
	require.Len(t, joined.Members, 2)
	require.Equal(t, "initializing", joined.State)

	status, resp = env.call(t, testToken, "ring_startTerm", termIDParams{TermID: termID})
	require.Equal(t, http.StatusOK, status)
	var started termResult
	require.NoError(t, json.Unmarshal(resp.Result, &started))
	require.Equal(t, "active", started.State)

	status, resp = env.call(t, "", "ring_getCollateralState", termIDParams{TermID: termID})
	require.Equal(t, http.StatusOK, status)
	var collState collateralStateResult
	require.NoError(t, json.Unmarshal(resp.Result, &collState))
	require.Equal(t, "ongoing", collState.State)

	status, resp = env.call(t, "", "ring_getFund", termIDParams{TermID: termID})
	require.Equal(t, http.StatusOK, status)
	var f fundResult
	require.NoError(t, json.Unmarshal(resp.Result, &f))
	require.Equal(t, uint64(1), f.CurrentCycle)
	require.Equal(t, "accepting", f.State)
	require.Len(t, f.Beneficiaries, 2)
}

func TestPayContributionAndDuplicateCode(t *testing.T) {
	env := newTestEnv(t)
	termID := env.createTerm(t)
	for i, member := range env.members {
		transferred := "400"
		if i == 1 {
			transferred = "150"
		}
		status, resp := env.call(t, testToken, "ring_joinTerm", joinTermParams{
			TermID: termID, Participant: member.String(), Transferred: transferred,
		})
		require.Equal(t, http.StatusOK, status, "join %d: %+v", i, resp.Error)
	}
	status, resp := env.call(t, testToken, "ring_startTerm", termIDParams{TermID: termID})
	require.Equal(t, http.StatusOK, status, "start: %+v", resp.Error)

	// First beneficiary is the head of the join order, so only the second
	// member owes a contribution.
	status, resp = env.call(t, "", "ring_currentBeneficiary", termIDParams{TermID: termID})
	require.Equal(t, http.StatusOK, status)
	var b beneficiaryResult
	require.NoError(t, json.Unmarshal(resp.Result, &b))
	require.Equal(t, env.members[0].String(), b.Beneficiary)

	status, resp = env.call(t, testToken, "ring_payContribution", payContributionParams{
		TermID: termID, Payer: env.members[1].String(),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = env.call(t, testToken, "ring_payContribution", payContributionParams{
		TermID: termID, Payer: env.members[1].String(),
	})
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeAlreadyPaid, resp.Error.Code)

	status, resp = env.call(t, testToken, "ring_payContribution", payContributionParams{
		TermID: termID, Payer: env.members[0].String(),
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeBeneficiaryExempt, resp.Error.Code)
}

func TestInsufficientDepositCode(t *testing.T) {
	env := newTestEnv(t)
	termID := env.createTerm(t)
	status, resp := env.call(t, testToken, "ring_joinTerm", joinTermParams{
		TermID: termID, Participant: env.members[0].String(), Transferred: "10",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInsufficientPayment, resp.Error.Code)
}

func TestUnknownTermMapsToNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "", "ring_getTerm", termIDParams{TermID: 999})
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeTermNotFound, resp.Error.Code)
}

func TestNoYieldToWithdrawCode(t *testing.T) {
	env := newTestEnv(t)
	termID := env.createTerm(t)
	for i, member := range env.members {
		optIn := i == 0
		status, resp := env.call(t, testToken, "ring_joinTerm", joinTermParams{
			TermID: termID, Participant: member.String(), Transferred: "400", OptInYield: optIn,
		})
		require.Equal(t, http.StatusOK, status, "join %d: %+v", i, resp.Error)
	}
	status, resp := env.call(t, testToken, "ring_startTerm", termIDParams{TermID: termID})
	require.Equal(t, http.StatusOK, status, "start: %+v", resp.Error)

	// Vault value has not moved, so there is no surplus to claim.
	status, resp = env.call(t, testToken, "ring_claimYield", termMemberParams{
		TermID: termID, Member: env.members[0].String(),
	})
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNoYieldToWithdraw, resp.Error.Code)

	status, resp = env.call(t, "", "ring_getYieldPosition", termMemberParams{
		TermID: termID, Member: env.members[0].String(),
	})
	require.Equal(t, http.StatusOK, status)
	var pos yieldPositionResult
	require.NoError(t, json.Unmarshal(resp.Result, &pos))
	require.Equal(t, "360", pos.Principal)
}

func TestAuthRequiredForMutations(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "", "ring_createTerm", createTermParams{
		Owner:              env.owner.String(),
		TotalParticipants:  2,
		RegistrationPeriod: 3_600,
		ContributionAmount: "100",
		ContributionPeriod: 600,
		CycleTime:          1_200,
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = env.call(t, "wrong-token", "ring_createTerm", createTermParams{
		Owner:              env.owner.String(),
		TotalParticipants:  2,
		RegistrationPeriod: 3_600,
		ContributionAmount: "100",
		ContributionPeriod: 600,
		CycleTime:          1_200,
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "", "ring_noSuchMethod", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestParseErrorOnInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)
}

func TestInvalidAddressRejectedBeforeEngine(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, testToken, "ring_joinTerm", joinTermParams{
		TermID: 1, Participant: "not-an-address", Transferred: "400",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestSetOraclePriceMovesMinDeposit(t *testing.T) {
	env := newTestEnv(t)
	termID := env.createTerm(t)

	status, resp := env.call(t, testToken, "ring_setOraclePrice", setOraclePriceParams{
		Numerator: "6", Denominator: "5",
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	// RNG is now worth 1.2 RUSD, so less of it covers the same obligation:
	// ceil(200 * 1.5 / 1.2) = 250.
	status, resp = env.call(t, "", "ring_minCollateralToDeposit", minCollateralParams{TermID: termID, Position: 0})
	require.Equal(t, http.StatusOK, status)
	var min minCollateralResult
	require.NoError(t, json.Unmarshal(resp.Result, &min))
	require.Equal(t, "250", min.MinDeposit)

	status, resp = env.call(t, testToken, "ring_setOraclePrice", setOraclePriceParams{
		Numerator: "0", Denominator: "5",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestMemberTermsIndex(t *testing.T) {
	env := newTestEnv(t)
	termID := env.createTerm(t)
	status, resp := env.call(t, testToken, "ring_joinTerm", joinTermParams{
		TermID: termID, Participant: env.members[0].String(), Transferred: "400",
	})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)

	status, resp = env.call(t, "", "ring_memberTerms", memberTermsParams{Address: env.members[0].String()})
	require.Equal(t, http.StatusOK, status)
	var result memberTermsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, []uint64{termID}, result.TermIDs)
	require.Empty(t, result.ExpelledFrom)
}
