package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"

	"crosslend/crypto"
)

type registerAssetParams struct {
	Underlying  string `json:"underlying"`
	PriceSource string `json:"priceSource"`
	MaxLTVBps   uint64 `json:"maxLtvBps"`
}

type assetParams struct {
	AssetID uint32 `json:"assetId"`
}

type setMaxLTVParams struct {
	AssetID   uint32 `json:"assetId"`
	MaxLTVBps uint64 `json:"maxLtvBps"`
}

type setAssetActiveParams struct {
	AssetID uint32 `json:"assetId"`
	Active  bool   `json:"active"`
}

type thresholdParams struct {
	ThresholdBps uint64 `json:"thresholdBps"`
}

type addressParams struct {
	Address string `json:"address"`
}

type pausedParams struct {
	Paused bool `json:"paused"`
}

type amountParams struct {
	Account string `json:"account"`
	AssetID uint32 `json:"assetId"`
	Amount  string `json:"amount"`
}

type liquidateParams struct {
	Liquidator        string `json:"liquidator"`
	Borrower          string `json:"borrower"`
	DebtAssetID       uint32 `json:"debtAssetId"`
	CollateralAssetID uint32 `json:"collateralAssetId"`
	Amount            string `json:"amount"`
}

type createRewardPoolParams struct {
	AssetID     uint32 `json:"assetId"`
	RewardToken string `json:"rewardToken"`
}

type accountAssetParams struct {
	Account string `json:"account"`
	AssetID uint32 `json:"assetId"`
}

type claimRewardsParams struct {
	Account  string   `json:"account"`
	AssetIDs []uint32 `json:"assetIds"`
}

type tokenParams struct {
	Token string `json:"token"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

type liquidateResult struct {
	Repaid string `json:"repaid"`
	Seized string `json:"seized"`
}

type ratesResult struct {
	Utilization string `json:"utilization"`
	BorrowRate  string `json:"borrowRate"`
	SupplyRate  string `json:"supplyRate"`
}

// decodeParams expects exactly one object parameter and decodes it into out.
func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, req *RPCRequest, field, value string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid "+field+" address", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func parseAmount(w http.ResponseWriter, req *RPCRequest, value string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a positive integer string", value)
		return nil, false
	}
	return amount, true
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Server) handleRegisterAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerAssetParams
	if !decodeParams(w, req, &params) {
		return
	}
	underlying, ok := parseAddress(w, req, "underlying", params.Underlying)
	if !ok {
		return
	}
	source, ok := parseAddress(w, req, "priceSource", params.PriceSource)
	if !ok {
		return
	}
	id, err := s.ledger.RegisterAsset(underlying, source, params.MaxLTVBps)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint32{"assetId": id})
}

func (s *Server) handleSetMaxLTV(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setMaxLTVParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.ledger.SetMaxLTV(params.AssetID, params.MaxLTVBps); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSetAssetActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setAssetActiveParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.ledger.SetAssetActive(params.AssetID, params.Active); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSetLiquidationThreshold(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params thresholdParams
	if !decodeParams(w, req, &params) {
		return
	}
	if err := s.ledger.SetLiquidationThreshold(params.ThresholdBps); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSetTeamAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := parseAddress(w, req, "team", params.Address)
	if !ok {
		return
	}
	if err := s.ledger.SetTeamAddress(addr); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pausedParams
	if !decodeParams(w, req, &params) {
		return
	}
	if s.pauses == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "pause switches not configured", nil)
		return
	}
	s.pauses.SetPaused("lending", params.Paused)
	writeResult(w, req.ID, true)
}

func (s *Server) handleClaimProtocolFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Token  string `json:"token"`
	}
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddress(w, req, "caller", params.Caller)
	if !ok {
		return
	}
	token, ok := parseAddress(w, req, "token", params.Token)
	if !ok {
		return
	}
	if err := s.ledger.ClaimProtocolFees(caller, token); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params amountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	if err := s.ledger.Supply(account, params.AssetID, amount); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params amountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	if err := s.ledger.Withdraw(account, params.AssetID, amount); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params amountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	if err := s.ledger.Borrow(account, params.AssetID, amount); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params amountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	repaid, err := s.ledger.Repay(account, params.AssetID, amount)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: bigString(repaid)})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params liquidateParams
	if !decodeParams(w, req, &params) {
		return
	}
	liquidator, ok := parseAddress(w, req, "liquidator", params.Liquidator)
	if !ok {
		return
	}
	borrower, ok := parseAddress(w, req, "borrower", params.Borrower)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	repaid, seized, err := s.ledger.Liquidate(liquidator, borrower, params.DebtAssetID, params.CollateralAssetID, amount)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, liquidateResult{Repaid: bigString(repaid), Seized: bigString(seized)})
}

func (s *Server) handleCreateRewardPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createRewardPoolParams
	if !decodeParams(w, req, &params) {
		return
	}
	token, ok := parseAddress(w, req, "rewardToken", params.RewardToken)
	if !ok {
		return
	}
	if err := s.ledger.CreateRewardPool(params.AssetID, token); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleFundReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params amountParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req, params.Amount)
	if !ok {
		return
	}
	if err := s.ledger.FundReward(account, params.AssetID, amount); err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleClaimReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountAssetParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	payout, err := s.ledger.ClaimReward(account, params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: bigString(payout)})
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimRewardsParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	total, err := s.ledger.ClaimRewardsBatch(account, params.AssetIDs)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: bigString(total)})
}

func (s *Server) handleGetAsset(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetParams
	if !decodeParams(w, req, &params) {
		return
	}
	asset, err := s.ledger.GetAsset(params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, asset)
}

func (s *Server) handleListAssets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	assets, err := s.ledger.ListAssets()
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, assets)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountAssetParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	view, err := s.ledger.GetUserPosition(account, params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleGetUtilization(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetParams
	if !decodeParams(w, req, &params) {
		return
	}
	utilization, err := s.ledger.GetUtilization(params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: bigString(utilization)})
}

func (s *Server) handleGetRates(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetParams
	if !decodeParams(w, req, &params) {
		return
	}
	utilization, err := s.ledger.GetUtilization(params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	borrowRate, err := s.ledger.GetBorrowRate(params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	supplyRate, err := s.ledger.GetSupplyRate(params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, ratesResult{
		Utilization: bigString(utilization),
		BorrowRate:  bigString(borrowRate),
		SupplyRate:  bigString(supplyRate),
	})
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Address)
	if !ok {
		return
	}
	hf, err := s.ledger.HealthFactor(account)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"healthFactor": hf})
}

func (s *Server) handleCheckLiquidatable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Address)
	if !ok {
		return
	}
	eligible, err := s.ledger.CheckLiquidatable(account)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"liquidatable": eligible})
}

func (s *Server) handleGetRewardPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params assetParams
	if !decodeParams(w, req, &params) {
		return
	}
	pool, err := s.ledger.GetRewardPool(params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, pool)
}

func (s *Server) handleGetUserReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params accountAssetParams
	if !decodeParams(w, req, &params) {
		return
	}
	account, ok := parseAddress(w, req, "account", params.Account)
	if !ok {
		return
	}
	view, err := s.ledger.GetUserReward(account, params.AssetID)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleGetProtocolFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenParams
	if !decodeParams(w, req, &params) {
		return
	}
	token, ok := parseAddress(w, req, "token", params.Token)
	if !ok {
		return
	}
	fees, err := s.ledger.GetProtocolFees(token)
	if err != nil {
		s.writeLedgerError(w, req.Method, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: bigString(fees)})
}
