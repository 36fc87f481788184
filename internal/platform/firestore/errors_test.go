package firestore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/campus-merch/api/internal/platform/config"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{codes.NotFound, true, false, false},
		{codes.AlreadyExists, false, true, false},
		{codes.Aborted, false, true, false},
		{codes.FailedPrecondition, false, true, false},
		{codes.Unavailable, false, false, true},
		{codes.ResourceExhausted, false, false, true},
		{codes.InvalidArgument, false, false, false},
	}
	for _, tc := range cases {
		err := WrapError("orders.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		if !assert.True(t, errors.As(err, &repoErr), tc.code.String()) {
			continue
		}
		assert.Equal(t, tc.notFound, repoErr.IsNotFound(), tc.code.String())
		assert.Equal(t, tc.conflict, repoErr.IsConflict(), tc.code.String())
		assert.Equal(t, tc.unavailable, repoErr.IsUnavailable(), tc.code.String())
		assert.Contains(t, err.Error(), "orders.get")
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
	assert.ErrorIs(t, WrapError("op", context.Canceled), context.Canceled)
	assert.ErrorIs(t, WrapError("op", status.Error(codes.Canceled, "gone")), context.Canceled)

	first := WrapError("", status.Error(codes.NotFound, "x"))
	again := WrapError("products.get", first)
	assert.Same(t, first, again)
	assert.Contains(t, again.Error(), "products.get")
}

func TestProviderRequiresProject(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	p := NewProvider(config.FirestoreConfig{})
	_, err := p.Client(context.Background())
	assert.Error(t, err)

	assert.NoError(t, p.Close())
	_, err = p.Client(context.Background())
	assert.ErrorIs(t, err, ErrProviderClosed)
}
