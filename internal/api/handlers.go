// Package api exposes the bridge over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/ethereum"
	"ethusd-bridge/internal/mint"
	"ethusd-bridge/internal/observability"
	"ethusd-bridge/internal/storage"
	"ethusd-bridge/internal/transfer"
)

// Info describes the deployment for /health.
type Info struct {
	Client ethereum.Client
	Minter string
	Token  string
	Usdt   string
}

// Handler serves the bridge API.
type Handler struct {
	mints     *mint.Orchestrator
	transfers *transfer.Service
	holds     storage.HoldStore
	ledger    storage.TransferStore
	info      Info
}

// NewHandler creates a Handler over the orchestrator, the transfer
// service and the two ledgers.
func NewHandler(mints *mint.Orchestrator, transfers *transfer.Service, holds storage.HoldStore, ledger storage.TransferStore, info Info) *Handler {
	return &Handler{mints: mints, transfers: transfers, holds: holds, ledger: ledger, info: info}
}

// ExecuteMint handles POST /mint-request.
func (h *Handler) ExecuteMint(w http.ResponseWriter, r *http.Request) {
	var req domain.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	res, err := h.mints.ExecuteMint(r.Context(), &req)
	if err != nil {
		respondWithMintError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// GetHold handles GET /hold/{holdId}.
func (h *Handler) GetHold(w http.ResponseWriter, r *http.Request) {
	holdID := mux.Vars(r)["holdId"]

	hold, err := h.mints.GetHold(r.Context(), holdID)
	if err != nil {
		respondWithMintError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"hold":    hold,
	})
}

// ListHolds handles GET /holds.
func (h *Handler) ListHolds(w http.ResponseWriter, r *http.Request) {
	holds, err := h.holds.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list holds")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"holds":   holds,
		"count":   len(holds),
	})
}

// GetStats handles GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	holds, err := h.holds.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list holds")
		return
	}
	transfers, err := h.ledger.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list transfers")
		return
	}
	respondWithJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		domain.LedgerStats
	}{true, domain.ComputeStats(holds, transfers)})
}

type mintAndSendRequest struct {
	Amount             float64 `json:"amount"`
	ToAddress          string  `json:"toAddress"`
	FromWallet         string  `json:"fromWallet,omitempty"`
	Memo               string  `json:"memo,omitempty"`
	CustodyAccountID   string  `json:"custodyAccountId,omitempty"`
	CustodyAccountName string  `json:"custodyAccountName,omitempty"`
}

// MintAndSend handles POST /mint-and-send.
func (h *Handler) MintAndSend(w http.ResponseWriter, r *http.Request) {
	var req mintAndSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	res, tr, err := h.transfers.MintAndSend(r.Context(), transfer.MintAndSendParams{
		Amount:             req.Amount,
		ToAddress:          req.ToAddress,
		Memo:               req.Memo,
		CustodyAccountID:   req.CustodyAccountID,
		CustodyAccountName: req.CustodyAccountName,
	})
	if err != nil {
		var e *mint.Error
		if errors.As(err, &e) && e.Step == "mint" {
			// The mint leg failed; report which half of the combined
			// operation broke and carry the underlying error inside.
			details := map[string]interface{}{
				"code":    e.Code,
				"message": e.Message,
			}
			if e.Reason != "" {
				details["reason"] = e.Reason
			}
			body := map[string]interface{}{
				"success": false,
				"error":   mint.CodeMintFailed,
				"step":    "mint",
				"details": details,
			}
			if e.HoldID != "" {
				body["holdId"] = e.HoldID
			}
			respondWithJSON(w, statusForError(e), body)
			return
		}
		// A settled mint with a failed ledger write still reports the hold.
		respondWithMintErrorAndResult(w, err, res)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"operationType": tr.OperationType,
		"transferId":    tr.ID,
		"txHash":        tr.TxHash,
		"explorerUrl":   tr.ExplorerURL,
		"holdId":        res.HoldID,
		"amount":        req.Amount,
		"toAddress":     req.ToAddress,
		"fromCustody":   h.transfers.Custody(),
		"isoReceipt":    res.IsoReceipt,
		"priceSnapshot": res.PriceSnapshot,
		"transfer":      tr,
		"message":       fmt.Sprintf("Minted %.2f USD and sent to %s", req.Amount, req.ToAddress),
	})
}

type sendRequest struct {
	ToAddress string  `json:"toAddress"`
	Amount    float64 `json:"amount"`
	Memo      string  `json:"memo,omitempty"`
}

// Send handles POST /send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	tr, err := h.transfers.Send(r.Context(), req.ToAddress, req.Amount, req.Memo)
	if err != nil {
		respondWithMintError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"transfer": tr,
	})
}

// SendUsdt handles POST /send-usdt.
func (h *Handler) SendUsdt(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	tr, err := h.transfers.SendUsdt(r.Context(), req.ToAddress, req.Amount, req.Memo)
	if err != nil {
		respondWithMintError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"transfer": tr,
	})
}

// ListTransfers handles GET /transfers.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.transfers.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list transfers")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"transfers": transfers,
		"count":     len(transfers),
	})
}

// GetBalance handles GET /balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.transfers.TokenBalance(r.Context())
	if err != nil {
		respondWithMintError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"address": h.transfers.Custody(),
		"balance": balance,
	})
}

// GetUsdtBalance handles GET /usdt-balance.
func (h *Handler) GetUsdtBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.transfers.UsdtBalance(r.Context())
	if err != nil {
		respondWithMintError(w, err)
		return
	}
	eth, err := h.transfers.EthBalance(r.Context())
	if err != nil {
		respondWithMintError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"address":    h.transfers.Custody(),
		"balance":    balance,
		"ethBalance": eth,
	})
}

// Health handles GET /health. A reachable node upgrades the payload
// with live chain info; an unreachable one degrades the status instead
// of failing the endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":        "ok",
		"wallet":        h.transfers.Custody(),
		"minterVersion": domain.MinterVersion,
		"contracts": map[string]string{
			"minter": h.info.Minter,
			"token":  h.info.Token,
			"usdt":   h.info.Usdt,
		},
		"features": []string{"mint-request", "mint-and-send", "send", "send-usdt"},
	}

	if h.info.Client != nil {
		chainID, err := h.info.Client.ChainID(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["chainError"] = err.Error()
		} else {
			resp["chainId"] = chainID.String()
			if block, err := h.info.Client.BlockNumber(r.Context()); err == nil {
				resp["blockNumber"] = block
			}
		}
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// NewRouter builds the bridge router.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", observability.Handler())
	r.HandleFunc("/health", instrument("/health", h.Health)).Methods("GET")

	r.HandleFunc("/mint-request", instrument("/mint-request", h.ExecuteMint)).Methods("POST")
	r.HandleFunc("/hold/{holdId}", instrument("/hold/{holdId}", h.GetHold)).Methods("GET")
	r.HandleFunc("/holds", instrument("/holds", h.ListHolds)).Methods("GET")
	r.HandleFunc("/stats", instrument("/stats", h.GetStats)).Methods("GET")

	r.HandleFunc("/mint-and-send", instrument("/mint-and-send", h.MintAndSend)).Methods("POST")
	r.HandleFunc("/send", instrument("/send", h.Send)).Methods("POST")
	r.HandleFunc("/send-usdt", instrument("/send-usdt", h.SendUsdt)).Methods("POST")
	r.HandleFunc("/transfers", instrument("/transfers", h.ListTransfers)).Methods("GET")

	r.HandleFunc("/balance", instrument("/balance", h.GetBalance)).Methods("GET")
	r.HandleFunc("/usdt-balance", instrument("/usdt-balance", h.GetUsdtBalance)).Methods("GET")
	return r
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with request counting and latency metrics.
func instrument(endpoint string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		observability.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rec.status), time.Since(start).Seconds())
	}
}

// statusForError maps error kinds onto HTTP status codes. Internal
// failures are 500; everything the caller can act on is 4xx.
func statusForError(e *mint.Error) int {
	switch {
	case e.Code == mint.CodeHoldNotFound:
		return http.StatusNotFound
	case e.Kind == mint.KindExecution:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func respondWithMintError(w http.ResponseWriter, err error) {
	respondWithMintErrorAndResult(w, err, nil)
}

func respondWithMintErrorAndResult(w http.ResponseWriter, err error, res *domain.MintResult) {
	var e *mint.Error
	if !errors.As(err, &e) {
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	body := map[string]interface{}{
		"success": false,
		"error":   e.Code,
		"message": e.Message,
	}
	if e.Reason != "" {
		body["reason"] = e.Reason
	}
	if e.HoldID != "" {
		body["holdId"] = e.HoldID
	}
	if e.Step != "" {
		body["step"] = e.Step
	}
	if e.Details != nil {
		body["details"] = e.Details
	}
	if res != nil {
		body["mint"] = res
	}
	respondWithJSON(w, statusForError(e), body)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"error":   mint.CodeInternal,
		"message": message,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
