// Package transfer moves tokens out of the custody wallet and keeps the
// append-only transfer ledger. It also composes mint-and-send, where a
// fresh mint lands directly at the recipient.
package transfer

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/big"
	"time"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/ethereum"
	"ethusd-bridge/internal/idhash"
	"ethusd-bridge/internal/mint"
	"ethusd-bridge/internal/observability"
	"ethusd-bridge/internal/storage"
)

// gasFloorWei is the minimum ETH balance required before a USDT send is
// attempted: 0.005 ETH.
var gasFloorWei = big.NewInt(5_000_000_000_000_000)

// Token is the ERC-20 surface the service moves funds through.
type Token interface {
	Contract() string
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, owner string) (*big.Int, error)
	Transfer(ctx context.Context, to string, amount *big.Int) (string, error)
}

// BoundToken couples an ERC-20 binding with the custody transactor so
// transfers need no per-call signer.
type BoundToken struct {
	*ethereum.ERC20
	tr *ethereum.Transactor
}

// NewBoundToken binds a token to the custody transactor.
func NewBoundToken(token *ethereum.ERC20, tr *ethereum.Transactor) *BoundToken {
	return &BoundToken{ERC20: token, tr: tr}
}

// Transfer sends amount base units to the recipient from the custody
// wallet.
func (b *BoundToken) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	return b.ERC20.Transfer(ctx, b.tr, to, amount)
}

// Compile-time interface check.
var _ Token = (*BoundToken)(nil)

// MintExecutor is the mint entry point mint-and-send composes with.
type MintExecutor interface {
	ExecuteMint(ctx context.Context, req *domain.MintRequest) (*domain.MintResult, error)
}

// Options configures a Service.
type Options struct {
	Transfers storage.TransferStore
	Holds     storage.HoldStore
	Client    ethereum.Client
	Token     Token // bridge token
	Usdt      Token
	Minter    MintExecutor
	Confirm   mint.Confirmer

	Custody     string // custody wallet address
	CustodyName string
	TokenSymbol string
	TokenName   string

	Confirmations  uint64
	ConfirmTimeout time.Duration
	ExplorerBase   string

	Now func() time.Time
}

// Service executes and records transfers.
type Service struct {
	opts Options
}

// NewService creates a Service, filling unset options with the mint
// package defaults.
func NewService(opts Options) *Service {
	if opts.Confirmations == 0 {
		opts.Confirmations = mint.DefaultConfirmations
	}
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = mint.DefaultConfirmTimeout
	}
	if opts.ExplorerBase == "" {
		opts.ExplorerBase = mint.DefaultExplorerBase
	}
	if opts.CustodyName == "" {
		opts.CustodyName = "DAES Custody"
	}
	if opts.TokenSymbol == "" {
		opts.TokenSymbol = "DUSD"
	}
	if opts.TokenName == "" {
		opts.TokenName = "DAES USD"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{opts: opts}
}

// Custody returns the custody wallet address.
func (s *Service) Custody() string {
	return s.opts.Custody
}

// Send moves bridge tokens from the custody wallet to a recipient.
func (s *Service) Send(ctx context.Context, to string, amount float64, memo string) (*domain.Transfer, error) {
	if err := validateSend(to, amount); err != nil {
		return nil, err
	}
	return s.send(ctx, sendParams{
		token:            s.opts.Token,
		to:               to,
		amount:           amount,
		memo:             memo,
		tokenSymbol:      s.opts.TokenSymbol,
		tokenName:        s.opts.TokenName,
		insufficientCode: mint.CodeInsufficientTokenBalance,
	})
}

// SendUsdt moves USDT from the custody wallet. The custody ETH balance
// must clear the gas floor before the transfer is attempted.
func (s *Service) SendUsdt(ctx context.Context, to string, amount float64, memo string) (*domain.Transfer, error) {
	if err := validateSend(to, amount); err != nil {
		return nil, err
	}

	ethBal, err := s.opts.Client.Balance(ctx, s.opts.Custody)
	if err != nil {
		return nil, execErr(mint.CodeInternal, "eth balance read failed", err)
	}
	if ethBal.Cmp(gasFloorWei) < 0 {
		return nil, &mint.Error{
			Kind:    mint.KindInsufficientBalance,
			Code:    mint.CodeInsufficientEthForGas,
			Message: "custody wallet cannot cover gas",
			Step:    "send",
			Details: map[string]interface{}{
				"requiredEth":  weiToEth(gasFloorWei),
				"availableEth": weiToEth(ethBal),
			},
		}
	}

	return s.send(ctx, sendParams{
		token:            s.opts.Usdt,
		to:               to,
		amount:           amount,
		memo:             memo,
		tokenSymbol:      "USDT",
		tokenName:        "Tether USD",
		operation:        domain.OpUsdtTransfer,
		insufficientCode: mint.CodeInsufficientUsdtBalance,
	})
}

// MintAndSendParams carries one mint-and-send request.
type MintAndSendParams struct {
	Amount             float64
	ToAddress          string
	Memo               string
	DebtorName         string
	DebtorID           string
	CustodyAccountID   string
	CustodyAccountName string
}

// MintAndSend mints the amount directly to the recipient, so the minted
// tokens land at the destination in the mint transaction itself. No
// second on-chain call is made; the ledger records the combined
// operation as a COMPLETED transfer reusing the mint's transaction. The
// mint leg carries an internal idempotency key so a transport retry
// cannot double-mint.
func (s *Service) MintAndSend(ctx context.Context, p MintAndSendParams) (*domain.MintResult, *domain.Transfer, error) {
	if err := validateSend(p.ToAddress, p.Amount); err != nil {
		return nil, nil, err
	}
	start := time.Now()

	res, err := s.opts.Minter.ExecuteMint(ctx, &domain.MintRequest{
		AmountUsd:      p.Amount,
		Beneficiary:    p.ToAddress,
		DebtorName:     p.DebtorName,
		DebtorID:       p.DebtorID,
		IdempotencyKey: idhash.InternalKey("mint-send", s.opts.Now()),
	})
	if err != nil {
		return nil, nil, err
	}

	tr := s.mintSendTransfer(ctx, p, res)
	if err := s.opts.Transfers.Insert(ctx, tr); err != nil {
		// The mint already settled; surface it alongside the ledger failure.
		return res, nil, execErr(mint.CodeInternal, "record transfer failed", err)
	}
	observability.RecordTransfer(s.opts.TokenSymbol, string(domain.TransferCompleted), time.Since(start).Seconds())

	if s.opts.Holds != nil {
		if attachErr := s.opts.Holds.AttachTransfer(ctx, res.HoldID, tr.ID); attachErr != nil {
			log.Printf("[transfer] attach transfer %s to hold %s failed: %v", tr.ID, res.HoldID, attachErr)
		}
	}

	log.Printf("[transfer] %s: minted %.2f %s directly to %s (%s)", tr.ID, p.Amount, s.opts.TokenSymbol, p.ToAddress, tr.TxHash)
	return res, tr, nil
}

// mintSendTransfer projects a settled mint into the ledger record for
// the combined operation.
func (s *Service) mintSendTransfer(ctx context.Context, p MintAndSendParams, res *domain.MintResult) *domain.Transfer {
	var snap *domain.PriceSnapshot
	if res.PriceSnapshot != nil {
		copied := *res.PriceSnapshot
		snap = &copied
	}

	custody := &domain.CustodyAccount{ID: p.CustodyAccountID, Name: p.CustodyAccountName}
	if custody.Name == "" {
		custody.Name = s.opts.CustodyName
	}

	memo := p.Memo
	if memo == "" {
		memo = "Mint-and-Send to " + p.ToAddress
	}

	decimals := mint.DefaultTokenDecimals
	if d, err := s.opts.Token.Decimals(ctx); err == nil {
		decimals = int(d)
	}

	var blockNumber, gasUsed uint64
	if s.opts.Holds != nil {
		if h, err := s.opts.Holds.GetByID(ctx, res.HoldID); err == nil {
			blockNumber, gasUsed = h.BlockNumber, h.GasUsed
		}
	}

	return &domain.Transfer{
		ID:             idhash.TransferID("mint-send"),
		Type:           "send",
		Amount:         p.Amount,
		ToAddress:      p.ToAddress,
		FromWallet:     s.opts.Custody,
		Memo:           memo,
		TxHash:         res.TxHash,
		ExplorerURL:    res.ExplorerURL,
		Status:         domain.TransferCompleted,
		Timestamp:      s.opts.Now().UnixMilli(),
		BlockNumber:    blockNumber,
		GasUsed:        gasUsed,
		MintHoldID:     res.HoldID,
		OperationType:  domain.OpMintAndSend,
		PriceSnapshot:  snap,
		CustodyAccount: custody,
		Token: &domain.TokenInfo{
			Symbol:   s.opts.TokenSymbol,
			Name:     s.opts.TokenName,
			Contract: s.opts.Token.Contract(),
			Decimals: decimals,
		},
	}
}

// TokenBalance reads the custody bridge-token balance in human units.
func (s *Service) TokenBalance(ctx context.Context) (float64, error) {
	return s.tokenBalance(ctx, s.opts.Token)
}

// UsdtBalance reads the custody USDT balance in human units.
func (s *Service) UsdtBalance(ctx context.Context) (float64, error) {
	return s.tokenBalance(ctx, s.opts.Usdt)
}

// EthBalance reads the custody ETH balance in ether.
func (s *Service) EthBalance(ctx context.Context) (float64, error) {
	wei, err := s.opts.Client.Balance(ctx, s.opts.Custody)
	if err != nil {
		return 0, execErr(mint.CodeInternal, "eth balance read failed", err)
	}
	return weiToEth(wei), nil
}

// List returns all recorded transfers in insertion order.
func (s *Service) List(ctx context.Context) ([]*domain.Transfer, error) {
	return s.opts.Transfers.List(ctx)
}

type sendParams struct {
	token            Token
	to               string
	amount           float64
	memo             string
	tokenSymbol      string
	tokenName        string
	operation        domain.OperationType
	insufficientCode string
}

// send runs the balance preflight, the transfer and the confirmation
// wait, then records the outcome in the ledger. Every broadcast attempt
// ends up in the ledger: completed, reverted or timed out.
func (s *Service) send(ctx context.Context, p sendParams) (*domain.Transfer, error) {
	start := time.Now()
	decimals, err := p.token.Decimals(ctx)
	if err != nil {
		log.Printf("[transfer] %s decimals read failed, assuming %d: %v", p.token.Contract(), mint.DefaultTokenDecimals, err)
		decimals = mint.DefaultTokenDecimals
	}
	units := toUnits(p.amount, int(decimals))

	balance, err := p.token.BalanceOf(ctx, s.opts.Custody)
	if err != nil {
		return nil, execErr(mint.CodeInternal, "token balance read failed", err)
	}
	if balance.Cmp(units) < 0 {
		return nil, &mint.Error{
			Kind:    mint.KindInsufficientBalance,
			Code:    p.insufficientCode,
			Message: fmt.Sprintf("custody holds %s %s, need %s", fromUnits(balance, int(decimals)), p.tokenSymbol, fromUnits(units, int(decimals))),
			Step:    "send",
			Details: map[string]interface{}{
				"required":  p.amount,
				"available": unitsToFloat(balance, int(decimals)),
			},
		}
	}

	txHash, err := p.token.Transfer(ctx, p.to, units)
	if err != nil {
		return nil, &mint.Error{
			Kind:    mint.KindBroadcast,
			Code:    mint.CodeBroadcastFailed,
			Message: "token transfer submission failed",
			Reason:  err.Error(),
			Step:    "send",
		}
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()

	rec, err := s.opts.Confirm(confirmCtx, txHash, s.opts.Confirmations)
	if err != nil {
		if confirmCtx.Err() != nil {
			// The tx may still land; record the failure with its hash
			// so the ledger points at what to reconcile.
			tr := s.newTransfer(p, txHash, int(decimals), domain.TransferFailed, 0, 0)
			if insertErr := s.opts.Transfers.Insert(ctx, tr); insertErr != nil {
				log.Printf("[transfer] record timed-out transfer %s failed: %v", tr.ID, insertErr)
			}
			observability.RecordTransfer(p.tokenSymbol, string(domain.TransferFailed), time.Since(start).Seconds())
			return nil, &mint.Error{
				Kind:    mint.KindTimeout,
				Code:    mint.CodeConfirmationTimeout,
				Message: fmt.Sprintf("transfer %s not confirmed within %s", txHash, s.opts.ConfirmTimeout),
				Step:    "send",
			}
		}
		return nil, execErr(mint.CodeInternal, "confirmation poll failed", err)
	}

	if rec.Status == 0 {
		tr := s.newTransfer(p, txHash, int(decimals), domain.TransferFailed, rec.BlockNumber, rec.GasUsed)
		observability.RecordTransfer(p.tokenSymbol, string(domain.TransferFailed), time.Since(start).Seconds())
		if insertErr := s.opts.Transfers.Insert(ctx, tr); insertErr != nil {
			log.Printf("[transfer] record reverted transfer %s failed: %v", tr.ID, insertErr)
		}
		return nil, &mint.Error{
			Kind:    mint.KindRevert,
			Code:    mint.CodeSendReverted,
			Message: "transfer transaction reverted",
			Step:    "send",
		}
	}

	tr := s.newTransfer(p, txHash, int(decimals), domain.TransferCompleted, rec.BlockNumber, rec.GasUsed)

	if err := s.opts.Transfers.Insert(ctx, tr); err != nil {
		return nil, execErr(mint.CodeInternal, "record transfer failed", err)
	}
	observability.RecordTransfer(p.tokenSymbol, string(domain.TransferCompleted), time.Since(start).Seconds())

	log.Printf("[transfer] %s: %.2f %s -> %s (%s)", tr.ID, p.amount, p.tokenSymbol, p.to, txHash)
	return tr, nil
}

// newTransfer builds the ledger record for one send attempt.
func (s *Service) newTransfer(p sendParams, txHash string, decimals int, status domain.TransferStatus, blockNumber, gasUsed uint64) *domain.Transfer {
	return &domain.Transfer{
		ID:             idhash.TransferID("transfer"),
		Type:           "send",
		Amount:         p.amount,
		ToAddress:      p.to,
		FromWallet:     s.opts.Custody,
		Memo:           p.memo,
		TxHash:         txHash,
		ExplorerURL:    s.opts.ExplorerBase + txHash,
		Status:         status,
		Timestamp:      s.opts.Now().UnixMilli(),
		BlockNumber:    blockNumber,
		GasUsed:        gasUsed,
		OperationType:  p.operation,
		CustodyAccount: &domain.CustodyAccount{Name: s.opts.CustodyName},
		Token: &domain.TokenInfo{
			Symbol:   p.tokenSymbol,
			Name:     p.tokenName,
			Contract: p.token.Contract(),
			Decimals: decimals,
		},
	}
}

func (s *Service) tokenBalance(ctx context.Context, token Token) (float64, error) {
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return 0, execErr(mint.CodeInternal, "token decimals read failed", err)
	}
	balance, err := token.BalanceOf(ctx, s.opts.Custody)
	if err != nil {
		return 0, execErr(mint.CodeInternal, "token balance read failed", err)
	}
	return unitsToFloat(balance, int(decimals)), nil
}

func validateSend(to string, amount float64) *mint.Error {
	if to == "" {
		return &mint.Error{Kind: mint.KindValidation, Code: mint.CodeMissingToAddress, Message: "to address is required"}
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return &mint.Error{Kind: mint.KindValidation, Code: mint.CodeInvalidAmount, Message: "amount must be a positive number"}
	}
	if !ethereum.ValidAddress(to) {
		return &mint.Error{Kind: mint.KindValidation, Code: mint.CodeInvalidToAddress, Message: "to address is not a valid address"}
	}
	return nil
}

func execErr(code, message string, cause error) *mint.Error {
	return &mint.Error{
		Kind:    mint.KindExecution,
		Code:    code,
		Message: message,
		Reason:  cause.Error(),
	}
}

func toUnits(amount float64, decimals int) *big.Int {
	return big.NewInt(int64(math.Round(amount * math.Pow10(decimals))))
}

func unitsToFloat(units *big.Int, decimals int) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(units), scale).Float64()
	return out
}

func fromUnits(units *big.Int, decimals int) string {
	return big.NewFloat(unitsToFloat(units, decimals)).Text('f', -1)
}

func weiToEth(wei *big.Int) float64 {
	return unitsToFloat(wei, 18)
}
