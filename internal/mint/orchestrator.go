// Package mint orchestrates the custodial mint pipeline: validation,
// price snapshot, hold ledgering, authorization signing, submission and
// confirmation.
package mint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/ethereum"
	"ethusd-bridge/internal/idhash"
	"ethusd-bridge/internal/observability"
	"ethusd-bridge/internal/oracle"
	"ethusd-bridge/internal/receipt"
	"ethusd-bridge/internal/storage"
)

// Defaults for orchestration parameters.
const (
	DefaultTokenDecimals  = 6
	DefaultConfirmations  = 1
	DefaultConfirmTimeout = 90 * time.Second
	DefaultDeadlineWindow = 600 * time.Second
	DefaultExplorerBase   = "https://etherscan.io/tx/"
)

// priceSnapshotTopic is the topic0 of the minter's PriceSnapshot event.
var priceSnapshotTopic = "0x" + hex.EncodeToString(
	ethereum.Keccak256([]byte("PriceSnapshot(bytes32,int256,uint8,uint64,bytes32)")))

// Minter is the on-chain surface the orchestrator submits mints through.
type Minter interface {
	// IsHoldUsed reports whether the contract already consumed a hold id.
	IsHoldUsed(ctx context.Context, holdID [32]byte) (bool, error)

	// Nonces reads the contract-side signature nonce for a beneficiary.
	Nonces(ctx context.Context, beneficiary string) (*big.Int, error)

	// Mint submits a signed authorization, returning the tx hash.
	Mint(ctx context.Context, auth *ethereum.MintAuthorization, sig []byte) (string, error)
}

// Confirmer waits for a transaction to be mined with the given number of
// confirmations.
type Confirmer func(ctx context.Context, txHash string, confirmations uint64) (*ethereum.Receipt, error)

// TokenMeta reads bridge token metadata needed for unit scaling.
type TokenMeta interface {
	Decimals(ctx context.Context) (uint8, error)
}

// ContractMinter adapts an ethereum.BridgeMinter plus Transactor to the
// Minter interface.
type ContractMinter struct {
	Contract   *ethereum.BridgeMinter
	Transactor *ethereum.Transactor
}

func (m *ContractMinter) IsHoldUsed(ctx context.Context, holdID [32]byte) (bool, error) {
	return m.Contract.IsHoldUsed(ctx, holdID)
}

func (m *ContractMinter) Nonces(ctx context.Context, beneficiary string) (*big.Int, error) {
	return m.Contract.Nonces(ctx, beneficiary)
}

func (m *ContractMinter) Mint(ctx context.Context, auth *ethereum.MintAuthorization, sig []byte) (string, error) {
	return m.Contract.MintWithAuthorization(ctx, m.Transactor, auth, sig)
}

// Compile-time interface check.
var _ Minter = (*ContractMinter)(nil)

// Options configures an Orchestrator. Zero values fall back to the
// package defaults.
type Options struct {
	Holds   storage.HoldStore
	Archive storage.SnapshotArchive // optional; archiving is best-effort
	Oracle  oracle.Source
	Minter  Minter
	Confirm Confirmer
	Token   TokenMeta // optional; TokenDecimals is the fallback

	Receipts *receipt.Builder
	Signer   *ethereum.Wallet
	Domain   ethereum.TypedDomain

	TokenDecimals  int
	Confirmations  uint64
	ConfirmTimeout time.Duration
	DeadlineWindow time.Duration
	ExplorerBase   string
	Currency       [3]byte

	Now func() time.Time
}

// call tracks one in-flight mint so that concurrent requests bearing the
// same idempotency key share a single submission.
type call struct {
	done chan struct{}
	res  *domain.MintResult
	err  error
}

// Orchestrator drives the mint pipeline.
type Orchestrator struct {
	opts Options

	mu       sync.Mutex
	inflight map[string]*call
}

// NewOrchestrator creates an Orchestrator, filling unset options with
// defaults.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.TokenDecimals == 0 {
		opts.TokenDecimals = DefaultTokenDecimals
	}
	if opts.Confirmations == 0 {
		opts.Confirmations = DefaultConfirmations
	}
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.DeadlineWindow == 0 {
		opts.DeadlineWindow = DefaultDeadlineWindow
	}
	if opts.ExplorerBase == "" {
		opts.ExplorerBase = DefaultExplorerBase
	}
	if opts.Currency == [3]byte{} {
		opts.Currency = [3]byte{'U', 'S', 'D'}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		opts:     opts,
		inflight: make(map[string]*call),
	}
}

// ExecuteMint runs one mint end to end. Requests carrying an idempotency
// key are deduplicated two ways: terminal holds replay their stored
// outcome, and concurrent requests join the in-flight submission instead
// of racing it.
func (o *Orchestrator) ExecuteMint(ctx context.Context, req *domain.MintRequest) (*domain.MintResult, error) {
	if err := validateMintRequest(req); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		return o.execute(ctx, req)
	}

	o.mu.Lock()
	if c, ok := o.inflight[key]; ok {
		o.mu.Unlock()
		select {
		case <-c.done:
			return replayResult(c.res), c.err
		case <-ctx.Done():
			return nil, executionError(CodeInternal, "canceled while waiting for in-flight mint", ctx.Err())
		}
	}

	// Not in flight; a previous run may have left a hold behind.
	h, err := o.opts.Holds.GetByIdempotencyKey(ctx, key)
	if err == nil {
		o.mu.Unlock()
		return o.replayHold(h)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		o.mu.Unlock()
		return nil, executionError(CodeInternal, "idempotency lookup failed", err)
	}

	c := &call{done: make(chan struct{})}
	o.inflight[key] = c
	o.mu.Unlock()

	res, execErr := o.execute(ctx, req)
	c.res, c.err = res, execErr

	o.mu.Lock()
	delete(o.inflight, key)
	o.mu.Unlock()
	close(c.done)

	return res, execErr
}

// replayResult clones an in-flight result for a joining request,
// marking it idempotent.
func replayResult(res *domain.MintResult) *domain.MintResult {
	if res == nil {
		return nil
	}
	out := *res
	out.Idempotent = true
	return &out
}

// replayHold reproduces the outcome stored on a terminal hold.
func (o *Orchestrator) replayHold(h *domain.Hold) (*domain.MintResult, error) {
	observability.RecordIdempotentReplay()
	switch h.Status {
	case domain.HoldConfirmed:
		res := resultFromHold(h)
		res.Idempotent = true
		return res, nil
	case domain.HoldFailed:
		return nil, &Error{
			Kind:    kindForCode(h.ErrorCode),
			Code:    h.ErrorCode,
			Message: h.ErrorMessage,
			HoldID:  h.HoldID,
			Step:    "mint",
		}
	default:
		// A non-terminal hold with no in-flight call means a previous
		// process died mid-mint. The outcome is unknown.
		return nil, &Error{
			Kind:    KindExecution,
			Code:    CodeHoldInProgress,
			Message: "a mint for this idempotency key is unresolved",
			HoldID:  h.HoldID,
			Step:    "mint",
		}
	}
}

// execute times one pipeline run and records its outcome.
func (o *Orchestrator) execute(ctx context.Context, req *domain.MintRequest) (*domain.MintResult, error) {
	start := time.Now()
	res, err := o.run(ctx, req)

	outcome := "confirmed"
	if err != nil {
		outcome = "failed"
		var e *Error
		if errors.As(err, &e) {
			switch e.Kind {
			case KindTimeout:
				outcome = "timeout"
			case KindRevert:
				outcome = "reverted"
			}
		}
	} else if res.Idempotent {
		outcome = "replayed"
	}
	observability.RecordMint(outcome, time.Since(start).Seconds())

	if err == nil && !res.Idempotent {
		observability.RecordConfirmedMint(o.opts.Now().Unix())
	}
	return res, err
}

// run executes the pipeline without idempotency bookkeeping.
func (o *Orchestrator) run(ctx context.Context, req *domain.MintRequest) (*domain.MintResult, error) {
	now := o.opts.Now()

	snap, err := o.opts.Oracle.Snapshot(ctx)
	if err != nil {
		return nil, executionError(CodeInternal, "price snapshot failed", err)
	}

	ref := idhash.NewRef(now)
	holdID := idhash.HoldID(ref)

	hold := &domain.Hold{
		HoldID:         holdID,
		Ref:            ref,
		Status:         domain.HoldPending,
		AmountUsd:      req.AmountUsd,
		Beneficiary:    req.Beneficiary,
		DebtorName:     req.DebtorName,
		DebtorID:       req.DebtorID,
		IdempotencyKey: req.IdempotencyKey,
		PriceSnapshot:  snap,
		CreatedAt:      now.UnixMilli(),
		UpdatedAt:      now.UnixMilli(),
	}

	if err := o.opts.Holds.InsertIfAbsent(ctx, hold); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) && req.IdempotencyKey != "" {
			// Lost a cross-process race on the key; replay the winner.
			if existing, getErr := o.opts.Holds.GetByIdempotencyKey(ctx, req.IdempotencyKey); getErr == nil {
				return o.replayHold(existing)
			}
		}
		return nil, executionError(CodeInternal, "persist hold failed", err)
	}

	observability.RecordHoldCreated()
	observability.RecordSnapshot(snap.Source, snap.EthUsdPrice)
	o.archiveSnapshot(ctx, snap, holdID)

	log.Printf("[mint] hold %s created: %.2f USD -> %s (price %.2f %s)",
		holdID, req.AmountUsd, req.Beneficiary, snap.EthUsdPrice, snap.Source)

	holdID32, err := holdIDBytes(holdID)
	if err != nil {
		return nil, o.failHold(ctx, holdID, KindExecution, CodeInternal, "malformed hold id", err)
	}

	// Older minter deployments predate isHoldUsed; a failed preflight
	// read is not a failed mint.
	used, err := o.opts.Minter.IsHoldUsed(ctx, holdID32)
	if err != nil {
		log.Printf("[mint] hold %s: isHoldUsed preflight unavailable: %v", holdID, err)
		used = false
	}
	if used {
		return nil, o.failHold(ctx, holdID, KindExecution, CodeHoldAlreadyUsed, "hold already consumed on-chain", nil)
	}

	pending := o.opts.Receipts.Build(hold, domain.ReceiptPending, now)
	isoHash, err := receipt.Iso20022Hash(pending)
	if err != nil {
		return nil, o.failHold(ctx, holdID, KindExecution, CodeInternal, "receipt hash failed", err)
	}

	nonce, err := o.opts.Minter.Nonces(ctx, req.Beneficiary)
	if err != nil {
		return nil, o.failHold(ctx, holdID, KindExecution, CodeMintFailed, "nonce read failed", err)
	}

	priceRaw, ok := new(big.Int).SetString(snap.PriceRaw, 10)
	if !ok {
		return nil, o.failHold(ctx, holdID, KindExecution, CodeInternal,
			fmt.Sprintf("unparseable price %q", snap.PriceRaw), nil)
	}

	auth := &ethereum.MintAuthorization{
		HoldID:        holdID32,
		Amount:        tokenUnits(req.AmountUsd, o.tokenDecimals(ctx)),
		Beneficiary:   req.Beneficiary,
		Iso20022Hash:  isoHash,
		Iso4217:       o.opts.Currency,
		Deadline:      big.NewInt(now.Add(o.opts.DeadlineWindow).Unix()),
		Nonce:         nonce,
		EthUsdPrice:   priceRaw,
		PriceDecimals: uint8(snap.PriceDecimals),
		PriceTs:       uint64(snap.PriceTs),
	}

	sig, err := ethereum.SignAuthorization(o.opts.Signer, o.opts.Domain, auth)
	if err != nil {
		return nil, o.failHold(ctx, holdID, KindExecution, CodeInternal, "authorization signing failed", err)
	}

	txHash, err := o.opts.Minter.Mint(ctx, auth, sig)
	if err != nil {
		return nil, o.failHold(ctx, holdID, KindBroadcast, CodeBroadcastFailed, "mint submission failed", err)
	}

	explorerURL := o.opts.ExplorerBase + txHash
	if _, err := o.opts.Holds.UpdateStatus(ctx, holdID, domain.HoldSubmitted, storage.HoldUpdate{
		TxHash:      txHash,
		ExplorerURL: explorerURL,
	}); err != nil {
		return nil, executionError(CodeInternal, "record submission failed", err)
	}

	log.Printf("[mint] hold %s submitted: %s", holdID, txHash)

	confirmCtx, cancel := context.WithTimeout(ctx, o.opts.ConfirmTimeout)
	defer cancel()

	rec, err := o.opts.Confirm(confirmCtx, txHash, o.opts.Confirmations)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// The tx may still land; the hold keeps its txHash so an
			// operator can resolve it against the chain.
			msg := fmt.Sprintf("transaction not confirmed within %s", o.opts.ConfirmTimeout)
			if failErr := o.failHoldUpdate(ctx, holdID, storage.HoldUpdate{
				ErrorCode:    CodeConfirmationTimeout,
				ErrorMessage: msg,
			}); failErr != nil {
				log.Printf("[mint] hold %s: failed to record timeout: %v", holdID, failErr)
			}
			return nil, &Error{
				Kind:    KindTimeout,
				Code:    CodeConfirmationTimeout,
				Message: msg,
				HoldID:  holdID,
				Step:    "mint",
			}
		}
		return nil, executionError(CodeInternal, "confirmation poll failed", err)
	}

	if rec.Status == 0 {
		failErr := o.failHoldUpdate(ctx, holdID, storage.HoldUpdate{
			BlockNumber:  rec.BlockNumber,
			GasUsed:      rec.GasUsed,
			ErrorCode:    CodeMintReverted,
			ErrorMessage: "mint transaction reverted",
		})
		if failErr != nil {
			log.Printf("[mint] hold %s: failed to record revert: %v", holdID, failErr)
		}
		return nil, &Error{
			Kind:    KindRevert,
			Code:    CodeMintReverted,
			Message: "mint transaction reverted",
			HoldID:  holdID,
			Step:    "mint",
		}
	}

	emitted := hasPriceSnapshotEvent(rec.Logs)

	hold.TxHash = txHash
	hold.BlockNumber = rec.BlockNumber
	settled := o.opts.Receipts.Build(hold, domain.ReceiptSettled, o.opts.Now())
	if err := o.opts.Receipts.Sign(settled, o.opts.Now()); err != nil {
		return nil, executionError(CodeInternal, "receipt signing failed", err)
	}

	confirmed, err := o.opts.Holds.UpdateStatus(ctx, holdID, domain.HoldConfirmed, storage.HoldUpdate{
		BlockNumber:     rec.BlockNumber,
		GasUsed:         rec.GasUsed,
		IsoReceipt:      settled,
		SnapshotEmitted: &emitted,
	})
	if err != nil {
		return nil, executionError(CodeInternal, "record confirmation failed", err)
	}

	log.Printf("[mint] hold %s confirmed in block %d (snapshot emitted: %v)",
		holdID, rec.BlockNumber, emitted)

	return resultFromHold(confirmed), nil
}

// GetHold retrieves a hold for the status endpoint.
func (o *Orchestrator) GetHold(ctx context.Context, holdID string) (*domain.Hold, error) {
	h, err := o.opts.Holds.GetByID(ctx, holdID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &Error{
				Kind:    KindValidation,
				Code:    CodeHoldNotFound,
				Message: "hold not found",
				HoldID:  holdID,
			}
		}
		return nil, executionError(CodeInternal, "hold lookup failed", err)
	}
	return h, nil
}

// tokenDecimals reads decimals from the token contract, falling back to
// the configured value when the contract is unreadable.
func (o *Orchestrator) tokenDecimals(ctx context.Context) int {
	if o.opts.Token == nil {
		return o.opts.TokenDecimals
	}
	d, err := o.opts.Token.Decimals(ctx)
	if err != nil {
		log.Printf("[mint] token decimals read failed, using %d: %v", o.opts.TokenDecimals, err)
		return o.opts.TokenDecimals
	}
	return int(d)
}

// failHold marks a hold FAILED and wraps the cause.
func (o *Orchestrator) failHold(ctx context.Context, holdID string, kind Kind, code, message string, cause error) error {
	if err := o.failHoldUpdate(ctx, holdID, storage.HoldUpdate{
		ErrorCode:    code,
		ErrorMessage: message,
	}); err != nil {
		log.Printf("[mint] hold %s: failed to record failure: %v", holdID, err)
	}

	e := &Error{Kind: kind, Code: code, Message: message, HoldID: holdID, Step: "mint", cause: cause}
	if cause != nil {
		e.Reason = cause.Error()
	}
	return e
}

func (o *Orchestrator) failHoldUpdate(ctx context.Context, holdID string, upd storage.HoldUpdate) error {
	_, err := o.opts.Holds.UpdateStatus(ctx, holdID, domain.HoldFailed, upd)
	return err
}

// archiveSnapshot records the oracle read; failures are logged, never
// surfaced.
func (o *Orchestrator) archiveSnapshot(ctx context.Context, snap *domain.PriceSnapshot, holdID string) {
	if o.opts.Archive == nil {
		return
	}
	rec := &domain.SnapshotRecord{
		Pair:          "ETH/USD",
		Price:         snap.EthUsdPrice,
		PriceRaw:      snap.PriceRaw,
		PriceDecimals: snap.PriceDecimals,
		PriceTs:       snap.PriceTs,
		Source:        snap.Source,
		HoldID:        holdID,
		RecordedAt:    o.opts.Now().UnixMilli(),
	}
	if err := o.opts.Archive.Archive(ctx, rec); err != nil {
		log.Printf("[mint] snapshot archive failed for hold %s: %v", holdID, err)
	}
}

// validateMintRequest enforces the request contract in its documented
// order.
func validateMintRequest(req *domain.MintRequest) *Error {
	if req == nil || req.Beneficiary == "" {
		return validationError(CodeMissingBeneficiary, "beneficiary is required")
	}
	if req.AmountUsd <= 0 || math.IsNaN(req.AmountUsd) || math.IsInf(req.AmountUsd, 0) {
		return validationError(CodeInvalidAmount, "amountUsd must be a positive number")
	}
	if !ethereum.ValidAddress(req.Beneficiary) {
		return validationError(CodeInvalidBeneficiaryAddress, "beneficiary is not a valid address")
	}
	return nil
}

// resultFromHold projects a confirmed hold into the mint result shape.
func resultFromHold(h *domain.Hold) *domain.MintResult {
	res := &domain.MintResult{
		Success:     true,
		HoldID:      h.HoldID,
		TxHash:      h.TxHash,
		ExplorerURL: h.ExplorerURL,
		IsoReceipt:  h.IsoReceipt,
	}
	if h.PriceSnapshot != nil {
		snap := *h.PriceSnapshot
		res.PriceSnapshot = &snap
		res.EthUsdPrice = snap.EthUsdPrice
		res.PriceDecimals = snap.PriceDecimals
		res.PriceTs = snap.PriceTs
	}
	return res
}

// hasPriceSnapshotEvent scans receipt logs for the PriceSnapshot event.
func hasPriceSnapshotEvent(logs []ethereum.Log) bool {
	for _, l := range logs {
		if len(l.Topics) > 0 && strings.EqualFold(l.Topics[0], priceSnapshotTopic) {
			return true
		}
	}
	return false
}

// tokenUnits converts a USD amount to token base units.
func tokenUnits(amount float64, decimals int) *big.Int {
	return big.NewInt(int64(math.Round(amount * math.Pow10(decimals))))
}

// holdIDBytes decodes a 0x-prefixed hold id into its bytes32 form.
func holdIDBytes(holdID string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(holdID, "0x"))
	if err != nil {
		return out, fmt.Errorf("decode hold id: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("hold id must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
