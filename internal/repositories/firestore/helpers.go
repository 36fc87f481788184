package firestore

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
	"github.com/campus-merch/api/internal/platform/pagination"
)

// Firestore "in" filters accept at most this many values.
const maxInFilterValues = 10

func errNotFound(op, format string, args ...any) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, fmt.Sprintf(format, args...)))
}

func pageLimits(pageSize int) (limit, fetch int) {
	if pageSize < 0 {
		pageSize = 0
	}
	if pageSize == 0 {
		return 0, 0
	}
	return pageSize, pageSize + 1
}

// encodeCreatedCursor builds a page token positioned after the given document.
func encodeCreatedCursor(createdAt time.Time, id string) string {
	return pagination.EncodeToken(pagination.Cursor{CreatedAt: createdAt, ID: id})
}

func decodeCreatedCursor(token string) ([]any, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil || cursor.IsZero() {
		return nil, err
	}
	return []any{cursor.CreatedAt, cursor.ID}, nil
}

// newestFirst orders by creation time with the document ID as tie breaker and applies the
// cursor and fetch limit.
func newestFirst(q firestore.Query, startAfter []any, fetch int) firestore.Query {
	q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
	if len(startAfter) == 2 {
		q = q.StartAfter(startAfter...)
	}
	if fetch > 0 {
		q = q.Limit(fetch)
	}
	return q
}

func whereIn(q firestore.Query, path string, values []string) firestore.Query {
	switch {
	case len(values) == 0:
		return q
	case len(values) == 1:
		return q.Where(path, "==", values[0])
	default:
		if len(values) > maxInFilterValues {
			values = values[:maxInFilterValues]
		}
		return q.Where(path, "in", values)
	}
}

func stringsOf[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(string(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func timePtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	v := value.UTC()
	return &v
}

type timelineDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Note      string    `firestore:"note,omitempty"`
	Actor     string    `firestore:"actor,omitempty"`
}
