package textutil

import (
	"fmt"
	"strings"
	"testing"
)

func TestMetadata(t *testing.T) {
	got := Metadata(map[string]string{
		" orderId ": " ord_1 ",
		"empty":     " ",
		" ":         "ignored",
		"note":      strings.Repeat("अ", 600),
	})
	if len(got) != 2 || got["orderId"] != "ord_1" {
		t.Fatalf("unexpected metadata %v", got)
	}
	if n := len([]rune(got["note"])); n != maxMetadataValueLen {
		t.Fatalf("expected value clipped to %d runes, got %d", maxMetadataValueLen, n)
	}

	if Metadata(nil) != nil || Metadata(map[string]string{"a": ""}) != nil {
		t.Fatal("expected nil for empty input")
	}

	many := make(map[string]string, 60)
	for i := 0; i < 60; i++ {
		many[fmt.Sprintf("k%02d", i)] = "v"
	}
	limited := Metadata(many)
	if len(limited) != maxMetadataKeys {
		t.Fatalf("expected %d keys, got %d", maxMetadataKeys, len(limited))
	}
	if _, ok := limited["k00"]; !ok {
		t.Fatal("expected lowest sorted keys kept")
	}
}
