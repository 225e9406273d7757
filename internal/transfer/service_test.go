package transfer

import (
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/ethereum"
	"ethusd-bridge/internal/ethereum/stub"
	"ethusd-bridge/internal/mint"
	"ethusd-bridge/internal/storage/memory"
)

const (
	testTokenAddr = "0x1111111111111111111111111111111111111111"
	testUsdtAddr  = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	testRecipient = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testSignerKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

// fakeMinter scripts ExecuteMint for mint-and-send tests.
type fakeMinter struct {
	mu   sync.Mutex
	reqs []*domain.MintRequest
	res  *domain.MintResult
	err  error
}

func (m *fakeMinter) ExecuteMint(_ context.Context, req *domain.MintRequest) (*domain.MintResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.res, nil
}

type testEnv struct {
	svc       *Service
	client    *stub.Client
	transfers *memory.TransferStore
	holds     *memory.HoldStore
	minter    *fakeMinter
	custody   string
}

func uintWord(v *big.Int) []byte {
	w := make([]byte, 32)
	v.FillBytes(w)
	return w
}

func smallWord(v byte) []byte {
	w := make([]byte, 32)
	w[31] = v
	return w
}

func scriptToken(client *stub.Client, contract string, decimals byte, balance *big.Int) {
	client.CallResults[stub.CallKey(contract, ethereum.Selector("decimals()"))] = smallWord(decimals)
	client.CallResults[stub.CallKey(contract, ethereum.Selector("balanceOf(address)"))] = uintWord(balance)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	wallet, err := ethereum.NewWalletFromHex(testSignerKey)
	if err != nil {
		t.Fatal(err)
	}

	client := stub.NewClient()
	// 1000 DUSD and 500 USDT in custody, 1 ETH for gas.
	scriptToken(client, testTokenAddr, 6, big.NewInt(1_000_000_000))
	scriptToken(client, testUsdtAddr, 6, big.NewInt(500_000_000))
	client.SetBalance(wallet.Address(), big.NewInt(1_000_000_000_000_000_000))

	tr := ethereum.NewTransactor(client, wallet)
	transfers := memory.NewTransferStore()
	holds := memory.NewHoldStore()
	minter := &fakeMinter{res: &domain.MintResult{
		Success: true,
		HoldID:  "0x" + strings.Repeat("ab", 32),
		TxHash:  "0xminttx",
		PriceSnapshot: &domain.PriceSnapshot{
			EthUsdPrice:   2531.42,
			PriceRaw:      "253142000000",
			PriceDecimals: 8,
			PriceTs:       1700000000,
			Source:        "CHAINLINK",
		},
	}}

	svc := NewService(Options{
		Transfers: transfers,
		Holds:     holds,
		Client:    client,
		Token:     NewBoundToken(ethereum.NewERC20(client, testTokenAddr), tr),
		Usdt:      NewBoundToken(ethereum.NewERC20(client, testUsdtAddr), tr),
		Minter:    minter,
		Confirm: func(ctx context.Context, txHash string, confirmations uint64) (*ethereum.Receipt, error) {
			return ethereum.WaitMined(ctx, client, txHash, confirmations, time.Millisecond)
		},
		Custody:        wallet.Address(),
		ConfirmTimeout: 2 * time.Second,
	})

	return &testEnv{svc: svc, client: client, transfers: transfers, holds: holds, minter: minter, custody: wallet.Address()}
}

func transferError(t *testing.T, err error) *mint.Error {
	t.Helper()
	var e *mint.Error
	if !errors.As(err, &e) {
		t.Fatalf("error is not a mint error: %v", err)
	}
	return e
}

func TestSend_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tr, err := env.svc.Send(ctx, testRecipient, 100.5, "invoice 42")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if tr.Status != domain.TransferCompleted {
		t.Errorf("status = %s", tr.Status)
	}
	if tr.Amount != 100.5 || tr.ToAddress != testRecipient || tr.Memo != "invoice 42" {
		t.Errorf("transfer = %+v", tr)
	}
	if tr.FromWallet != env.custody {
		t.Errorf("fromWallet = %s", tr.FromWallet)
	}
	if !strings.HasPrefix(tr.ExplorerURL, mint.DefaultExplorerBase) {
		t.Errorf("explorerUrl = %s", tr.ExplorerURL)
	}
	if tr.Token == nil || tr.Token.Symbol != "DUSD" || tr.Token.Contract != testTokenAddr || tr.Token.Decimals != 6 {
		t.Errorf("token info = %+v", tr.Token)
	}
	if tr.CustodyAccount == nil || tr.CustodyAccount.Name != "DAES Custody" {
		t.Errorf("custody account = %+v", tr.CustodyAccount)
	}
	if tr.BlockNumber == 0 || tr.GasUsed == 0 {
		t.Errorf("receipt fields = block %d gas %d", tr.BlockNumber, tr.GasUsed)
	}

	recorded, err := env.transfers.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].ID != tr.ID {
		t.Errorf("ledger = %+v", recorded)
	}
}

func TestSend_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		to     string
		amount float64
		code   string
	}{
		{"missing to", "", 10, mint.CodeMissingToAddress},
		{"invalid to", "0xnope", 10, mint.CodeInvalidToAddress},
		{"zero amount", testRecipient, 0, mint.CodeInvalidAmount},
		{"nan amount", testRecipient, math.NaN(), mint.CodeInvalidAmount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Send(ctx, tc.to, tc.amount, "")
			e := transferError(t, err)
			if e.Kind != mint.KindValidation || e.Code != tc.code {
				t.Errorf("error = %s/%s, want %s", e.Kind, e.Code, tc.code)
			}
		})
	}

	if env.client.SubmitCount() != 0 {
		t.Errorf("submit count = %d", env.client.SubmitCount())
	}
}

func TestSend_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	scriptToken(env.client, testTokenAddr, 6, big.NewInt(5_000_000)) // 5 DUSD

	_, err := env.svc.Send(context.Background(), testRecipient, 100, "")
	e := transferError(t, err)
	if e.Kind != mint.KindInsufficientBalance || e.Code != mint.CodeInsufficientTokenBalance {
		t.Fatalf("error = %s/%s", e.Kind, e.Code)
	}
	if e.Details["required"] != 100.0 || e.Details["available"] != 5.0 {
		t.Errorf("details = %+v", e.Details)
	}
	if env.client.SubmitCount() != 0 {
		t.Errorf("submit count = %d", env.client.SubmitCount())
	}
}

func TestSendUsdt_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	tr, err := env.svc.SendUsdt(context.Background(), testRecipient, 250, "")
	if err != nil {
		t.Fatalf("SendUsdt: %v", err)
	}
	if tr.OperationType != domain.OpUsdtTransfer {
		t.Errorf("operation = %s", tr.OperationType)
	}
	if tr.Token == nil || tr.Token.Symbol != "USDT" || tr.Token.Contract != testUsdtAddr {
		t.Errorf("token info = %+v", tr.Token)
	}
}

func TestSendUsdt_GasFloor(t *testing.T) {
	env := newTestEnv(t)
	// 0.004 ETH, below the 0.005 floor.
	env.client.SetBalance(env.custody, big.NewInt(4_000_000_000_000_000))

	_, err := env.svc.SendUsdt(context.Background(), testRecipient, 10, "")
	e := transferError(t, err)
	if e.Kind != mint.KindInsufficientBalance || e.Code != mint.CodeInsufficientEthForGas {
		t.Fatalf("error = %s/%s", e.Kind, e.Code)
	}
	if e.Details["requiredEth"] != 0.005 {
		t.Errorf("details = %+v", e.Details)
	}
	if env.client.SubmitCount() != 0 {
		t.Errorf("submit count = %d", env.client.SubmitCount())
	}
}

func TestSendUsdt_InsufficientUsdt(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.SendUsdt(context.Background(), testRecipient, 900, "")
	e := transferError(t, err)
	if e.Code != mint.CodeInsufficientUsdtBalance {
		t.Errorf("code = %s", e.Code)
	}
}

func TestSend_RevertRecordsFailedTransfer(t *testing.T) {
	env := newTestEnv(t)
	env.client.MineStatus = 0
	ctx := context.Background()

	_, err := env.svc.Send(ctx, testRecipient, 10, "")
	e := transferError(t, err)
	if e.Kind != mint.KindRevert || e.Code != mint.CodeSendReverted {
		t.Fatalf("error = %s/%s", e.Kind, e.Code)
	}

	recorded, err := env.transfers.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].Status != domain.TransferFailed {
		t.Errorf("ledger = %+v", recorded)
	}
}

func TestSend_ConfirmationTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.client.ReceiptDelay = 1 << 30
	env.svc.opts.ConfirmTimeout = 50 * time.Millisecond
	ctx := context.Background()

	_, err := env.svc.Send(ctx, testRecipient, 10, "")
	e := transferError(t, err)
	if e.Kind != mint.KindTimeout || e.Code != mint.CodeConfirmationTimeout {
		t.Fatalf("error = %s/%s", e.Kind, e.Code)
	}

	// The tx may still land; the ledger records the failure with its
	// hash for reconciliation.
	recorded, err := env.transfers.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].Status != domain.TransferFailed {
		t.Fatalf("ledger = %+v", recorded)
	}
	if recorded[0].TxHash == "" {
		t.Error("txHash not recorded")
	}
}

func TestMintAndSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	holdID := env.minter.res.HoldID
	if err := env.holds.InsertIfAbsent(ctx, &domain.Hold{HoldID: holdID, Status: domain.HoldConfirmed}); err != nil {
		t.Fatal(err)
	}

	res, tr, err := env.svc.MintAndSend(ctx, MintAndSendParams{
		Amount:             100,
		ToAddress:          testRecipient,
		Memo:               "payout",
		DebtorName:         "ACME Corp",
		DebtorID:           "LEI-12345",
		CustodyAccountName: "Treasury A",
	})
	if err != nil {
		t.Fatalf("MintAndSend: %v", err)
	}

	if len(env.minter.reqs) != 1 {
		t.Fatalf("mint requests = %d", len(env.minter.reqs))
	}
	req := env.minter.reqs[0]
	if req.Beneficiary != testRecipient {
		t.Errorf("mint beneficiary = %s, want recipient %s", req.Beneficiary, testRecipient)
	}
	if !strings.HasPrefix(req.IdempotencyKey, "mint-send-") {
		t.Errorf("idempotency key = %q", req.IdempotencyKey)
	}
	if req.DebtorName != "ACME Corp" || req.DebtorID != "LEI-12345" {
		t.Errorf("debtor = %s/%s", req.DebtorName, req.DebtorID)
	}

	if res.HoldID != holdID {
		t.Errorf("result hold = %s", res.HoldID)
	}
	if tr.MintHoldID != holdID || tr.OperationType != domain.OpMintAndSend {
		t.Errorf("transfer linkage = %+v", tr)
	}
	if tr.TxHash != res.TxHash {
		t.Errorf("transfer tx = %s, want mint tx %s", tr.TxHash, res.TxHash)
	}
	if tr.Status != domain.TransferCompleted {
		t.Errorf("status = %s", tr.Status)
	}
	if tr.PriceSnapshot == nil || tr.PriceSnapshot.EthUsdPrice != 2531.42 {
		t.Errorf("snapshot not carried: %+v", tr.PriceSnapshot)
	}
	if tr.CustodyAccount == nil || tr.CustodyAccount.Name != "Treasury A" {
		t.Errorf("custody account = %+v", tr.CustodyAccount)
	}

	h, err := env.holds.GetByID(ctx, holdID)
	if err != nil {
		t.Fatal(err)
	}
	if h.TransferID != tr.ID {
		t.Errorf("hold transferId = %s, want %s", h.TransferID, tr.ID)
	}
}

func TestMintAndSend_MintFailure(t *testing.T) {
	env := newTestEnv(t)
	env.minter.err = &mint.Error{Kind: mint.KindBroadcast, Code: mint.CodeBroadcastFailed, Message: "down"}

	res, tr, err := env.svc.MintAndSend(context.Background(), MintAndSendParams{Amount: 100, ToAddress: testRecipient})
	e := transferError(t, err)
	if e.Code != mint.CodeBroadcastFailed {
		t.Errorf("code = %s", e.Code)
	}
	if res != nil || tr != nil {
		t.Errorf("partial results on mint failure: %v %v", res, tr)
	}
	if env.client.SubmitCount() != 0 {
		t.Errorf("submit count = %d", env.client.SubmitCount())
	}
}

func TestMintAndSend_NoSecondTransaction(t *testing.T) {
	env := newTestEnv(t)
	// Custody holds nothing; the mint lands at the recipient, so no
	// custody balance is ever needed.
	scriptToken(env.client, testTokenAddr, 6, big.NewInt(0))
	ctx := context.Background()

	res, tr, err := env.svc.MintAndSend(ctx, MintAndSendParams{Amount: 100, ToAddress: testRecipient})
	if err != nil {
		t.Fatalf("MintAndSend: %v", err)
	}

	if env.client.SubmitCount() != 0 {
		t.Errorf("on-chain submissions = %d, want none beyond the mint", env.client.SubmitCount())
	}
	if tr.TxHash != res.TxHash || tr.Status != domain.TransferCompleted {
		t.Errorf("transfer = %+v", tr)
	}

	recorded, err := env.transfers.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 1 || recorded[0].ID != tr.ID {
		t.Errorf("ledger = %+v", recorded)
	}
}

func TestBalances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tok, err := env.svc.TokenBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tok != 1000 {
		t.Errorf("token balance = %v", tok)
	}

	usdt, err := env.svc.UsdtBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if usdt != 500 {
		t.Errorf("usdt balance = %v", usdt)
	}

	eth, err := env.svc.EthBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if eth != 1 {
		t.Errorf("eth balance = %v", eth)
	}
}
