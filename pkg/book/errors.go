package book

import "errors"

// Engine failure kinds. Every rejection is side-effect free beyond what the
// operation contract states; callers match with errors.Is.
var (
	// ErrInvalidInput covers malformed create parameters: identical assets,
	// unrecognized offered asset, amount below the asset minimum, or a
	// non-positive requested amount. Also used for malformed paging requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFeeAddress rejects an empty fee recipient or the custody
	// account itself.
	ErrInvalidFeeAddress = errors.New("invalid fee address")

	// ErrInsufficientFunds covers failed custody checks and transfers the
	// collaborator rejected for balance or allowance reasons.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPermissionDenied rejects a non-maker cancel, a non-admin fee
	// recipient change, or an execute against a corrupted zero-maker slot.
	ErrPermissionDenied = errors.New("permission denied")

	ErrOrderNotFound = errors.New("order not found")

	// ErrIndexOutOfBounds signals a store invariant violation. It is
	// unreachable from external input; seeing it means a defect.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrReentrantCall rejects a mutating call made while another mutating
	// call is still in flight (including transfer-callback reentry).
	ErrReentrantCall = errors.New("reentrant call")
)
