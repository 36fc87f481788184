package pagination

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaultsAndClamp(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != DefaultPageSize || params.PageToken != "" {
		t.Fatalf("unexpected defaults %+v", params)
	}

	params, err = Parse(url.Values{"pageSize": {"500"}}, Options{MaxPageSize: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != 50 {
		t.Fatalf("expected clamp to 50, got %d", params.PageSize)
	}

	params, err = Parse(url.Values{}, Options{DefaultPageSize: 80, MaxPageSize: 40})
	if err != nil || params.PageSize != 40 {
		t.Fatalf("expected default capped at max, got %+v %v", params, err)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]url.Values{
		"non numeric size": {"pageSize": {"ten"}},
		"zero size":        {"pageSize": {"0"}},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
				t.Fatalf("expected invalid page size, got %v", err)
			}
		})
	}
	if _, err := Parse(url.Values{"pageToken": {"!!!"}}, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	created := time.Date(2024, 8, 1, 5, 30, 0, 0, time.FixedZone("IST", 19800))
	token := EncodeToken(Cursor{CreatedAt: created, ID: "ord_1"})
	if token == "" {
		t.Fatal("expected a token")
	}
	params, err := Parse(url.Values{"pageToken": {token}}, Options{})
	if err != nil || params.PageToken != token {
		t.Fatalf("expected token accepted, got %+v %v", params, err)
	}
	cursor, err := DecodeToken(token)
	if err != nil || cursor.ID != "ord_1" || !cursor.CreatedAt.Equal(created) || cursor.CreatedAt.Location() != time.UTC {
		t.Fatalf("unexpected cursor %+v %v", cursor, err)
	}
	if empty := EncodeToken(Cursor{}); empty != "" {
		t.Fatalf("expected empty token for empty cursor, got %q", empty)
	}
	partial := base64.RawURLEncoding.EncodeToString([]byte(`{"i":"ord_1"}`))
	if _, err := DecodeToken(partial); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected incomplete cursor rejected, got %v", err)
	}
}

func TestListAndBool(t *testing.T) {
	values := url.Values{"status": {"pending, confirmed", "pending", " "}, "featured": {"true"}, "bad": {"maybe"}}
	got := List(values, "status")
	if len(got) != 2 || got[0] != "pending" || got[1] != "confirmed" {
		t.Fatalf("unexpected list %v", got)
	}
	if b, err := Bool(values, "featured"); err != nil || b == nil || !*b {
		t.Fatalf("expected true, got %v %v", b, err)
	}
	if b, err := Bool(values, "missing"); err != nil || b != nil {
		t.Fatalf("expected nil for missing, got %v %v", b, err)
	}
	if _, err := Bool(values, "bad"); err == nil {
		t.Fatal("expected error for non boolean")
	}
}
