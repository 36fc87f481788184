//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pconfig "github.com/campus-merch/api/internal/platform/config"
	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
)

type stockDoc struct {
	Name  string `firestore:"name"`
	Stock int    `firestore:"stock"`
	Price int64  `firestore:"price"`
}

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "campus-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func TestCollectionRoundTrip(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	collection := fmt.Sprintf("products_%d", time.Now().UnixNano())
	repo := pfirestore.NewCollection[stockDoc](provider, collection)

	if err := repo.Create(ctx, "prd_1", stockDoc{Name: "Hoodie", Stock: 3, Price: 79900}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, "prd_1", stockDoc{Name: "dup"}); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
	if err := repo.Create(ctx, "prd_2", stockDoc{Name: "Tee", Stock: 10, Price: 39900}); err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := repo.Get(ctx, "prd_1")
	if err != nil || doc.Data.Stock != 3 {
		t.Fatalf("get: %+v %v", doc, err)
	}

	_, err = repo.Get(ctx, "missing")
	var classified interface{ IsNotFound() bool }
	if !errors.As(err, &classified) || !classified.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	agg, err := repo.Aggregate(ctx, nil, "price")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.Count != 2 || agg.Sum != 119800 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
}

func TestTransactionDecrementIsAtomic(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := fmt.Sprintf("stock_%d", time.Now().UnixNano())
	repo := pfirestore.NewCollection[stockDoc](provider, collection)
	if err := repo.Create(ctx, "prd_last", stockDoc{Name: "Cap", Stock: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	errOut := errors.New("out of stock")
	decrement := func() error {
		return provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			ref, err := repo.Ref(ctx, "prd_last")
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			var doc stockDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Stock < 1 {
				return errOut
			}
			return tx.Update(ref, []firestore.Update{{Path: "stock", Value: doc.Stock - 1}})
		})
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = decrement()
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, errOut) && status.Code(errors.Unwrap(err)) != codes.Aborted {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful decrement, got %d", succeeded)
	}
	doc, err := repo.Get(ctx, "prd_last")
	if err != nil || doc.Data.Stock != 0 {
		t.Fatalf("expected stock 0, got %+v %v", doc, err)
	}
}
