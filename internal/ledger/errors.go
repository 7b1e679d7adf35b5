package ledger

import (
	"fmt"

	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
)

// ConflictDetails names the items that were not payable or lost a race.
type ConflictDetails struct {
	ConflictingItems []lineitems.ItemRef `json:"conflictingItems"`
}

// InvalidItemsDetails names refs that do not exist or belong to another supplier.
type InvalidItemsDetails struct {
	InvalidItems []lineitems.ItemRef `json:"invalidItems"`
}

// IdempotencyDetails identifies a reused idempotency key.
type IdempotencyDetails struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

func validationError(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(format, args...))
}

func invalidItemsError(refs []lineitems.ItemRef) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "line items do not exist or belong to another supplier").
		WithDetails(InvalidItemsDetails{InvalidItems: refs})
}

func conflictError(message string, refs []lineitems.ItemRef) error {
	if len(refs) == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, message)
	}
	return pkgerrors.New(pkgerrors.CodeConflict, message).
		WithDetails(ConflictDetails{ConflictingItems: refs})
}

func notFoundError(format string, args ...any) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf(format, args...))
}

func idempotencyError(key string) error {
	return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key was already used for a different payout request").
		WithDetails(IdempotencyDetails{IdempotencyKey: key})
}

// storeError maps an untyped persistence failure to a retryable dependency error.
func storeError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
