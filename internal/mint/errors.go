package mint

import "fmt"

// Kind classifies a mint failure for transport mapping and retry policy.
type Kind string

const (
	// KindValidation covers malformed input. No hold is created.
	KindValidation Kind = "VALIDATION"

	// KindInsufficientBalance covers preflight balance failures.
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"

	// KindBroadcast covers submission failures. The hold is FAILED and
	// the hold id is safe to retry under a new request.
	KindBroadcast Kind = "BROADCAST"

	// KindRevert covers on-chain execution failures of a mined
	// transaction.
	KindRevert Kind = "REVERT"

	// KindTimeout means the confirmation window elapsed with the
	// transaction still pending. The hold is FAILED with its txHash
	// kept so the outcome can be resolved against the chain.
	KindTimeout Kind = "TIMEOUT"

	// KindExecution covers internal failures: storage, oracle, signing.
	KindExecution Kind = "EXECUTION"
)

// Stable wire error codes.
const (
	CodeMissingBeneficiary        = "MISSING_BENEFICIARY"
	CodeInvalidAmount             = "INVALID_AMOUNT"
	CodeInvalidBeneficiaryAddress = "INVALID_BENEFICIARY_ADDRESS"
	CodeMissingToAddress          = "MISSING_TO_ADDRESS"
	CodeInvalidToAddress          = "INVALID_TO_ADDRESS"
	CodeHoldNotFound              = "HOLD_NOT_FOUND"
	CodeHoldInProgress            = "HOLD_IN_PROGRESS"
	CodeMintFailed                = "MINT_FAILED"
	CodeHoldAlreadyUsed           = "HOLD_ALREADY_USED"
	CodeBroadcastFailed           = "BROADCAST_FAILED"
	CodeMintReverted              = "MINT_REVERTED"
	CodeSendReverted              = "SEND_REVERTED"
	CodeConfirmationTimeout       = "CONFIRMATION_TIMEOUT"
	CodeInsufficientTokenBalance  = "INSUFFICIENT_TOKEN_BALANCE"
	CodeInsufficientUsdtBalance   = "INSUFFICIENT_USDT_BALANCE"
	CodeInsufficientEthForGas     = "INSUFFICIENT_ETH_FOR_GAS"
	CodeInternal                  = "INTERNAL_ERROR"
)

// Error is the typed failure every mint and transfer operation returns.
// Code is stable for clients; Reason carries the human-readable cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Reason  string
	HoldID  string

	// Step names the pipeline stage that failed ("mint", "send").
	Step string

	// Details carries structured context such as required/available
	// balances.
	Details map[string]interface{}

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

func validationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func executionError(code, message string, cause error) *Error {
	e := &Error{Kind: KindExecution, Code: code, Message: message, cause: cause}
	if cause != nil {
		e.Reason = cause.Error()
	}
	return e
}

// kindForCode maps a stored hold error code back to its kind when a
// failed hold is replayed through an idempotency key.
func kindForCode(code string) Kind {
	switch code {
	case CodeMissingBeneficiary, CodeInvalidAmount, CodeInvalidBeneficiaryAddress,
		CodeMissingToAddress, CodeInvalidToAddress:
		return KindValidation
	case CodeInsufficientTokenBalance, CodeInsufficientUsdtBalance, CodeInsufficientEthForGas:
		return KindInsufficientBalance
	case CodeBroadcastFailed:
		return KindBroadcast
	case CodeMintReverted, CodeSendReverted:
		return KindRevert
	case CodeConfirmationTimeout:
		return KindTimeout
	default:
		return KindExecution
	}
}
