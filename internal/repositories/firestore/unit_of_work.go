package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
	"github.com/campus-merch/api/internal/repositories"
)

// UnitOfWork groups repository writes into one Firestore transaction. Insert and Update
// calls made with the callback's context join the transaction; reads stay non-transactional.
type UnitOfWork struct {
	provider *pfirestore.Provider
}

var _ repositories.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork binds a unit of work to the provider's client.
func NewUnitOfWork(provider *pfirestore.Provider) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work: firestore provider is required")
	}
	return &UnitOfWork{provider: provider}, nil
}

// RunInTx runs fn inside a transaction. Nested calls reuse the outer transaction.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("unit of work: function is required")
	}
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return fn(ctx)
	}
	return u.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
