package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
)

const (
	aggregateCountAlias = "count"
	aggregateSumAlias   = "sum"
)

// Aggregate is the result of a count and optional sum aggregation.
type Aggregate struct {
	Count int64
	Sum   int64
}

// Aggregate counts the documents matched by build and, when sumField is set, sums that
// numeric field server-side.
func (c *Collection[T]) Aggregate(ctx context.Context, build QueryBuilder, sumField string) (Aggregate, error) {
	query, err := c.query(ctx, build)
	if err != nil {
		return Aggregate{}, err
	}

	agg := query.NewAggregationQuery().WithCount(aggregateCountAlias)
	if sumField != "" {
		agg = agg.WithSum(sumField, aggregateSumAlias)
	}
	result, err := agg.Get(ctx)
	if err != nil {
		return Aggregate{}, WrapError(c.op("aggregate"), err)
	}

	out := Aggregate{}
	if out.Count, err = aggregateInt(result, aggregateCountAlias); err != nil {
		return Aggregate{}, err
	}
	if sumField != "" {
		if out.Sum, err = aggregateInt(result, aggregateSumAlias); err != nil {
			return Aggregate{}, err
		}
	}
	return out, nil
}

func aggregateInt(result firestore.AggregationResult, alias string) (int64, error) {
	raw, ok := result[alias]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case *firestorepb.Value:
		switch inner := v.GetValueType().(type) {
		case *firestorepb.Value_IntegerValue:
			return inner.IntegerValue, nil
		case *firestorepb.Value_DoubleValue:
			return int64(inner.DoubleValue), nil
		case *firestorepb.Value_NullValue:
			return 0, nil
		}
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("firestore: unexpected aggregation value %T for %s", raw, alias)
}
