package api

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("short string was modified: %q", got)
	}

	exact := strings.Repeat("a", 10)
	if got := truncate(exact, 10); got != exact {
		t.Fatalf("string at exactly max was modified: %q", got)
	}

	over := strings.Repeat("a", 11)
	got := truncate(over, 10)
	if len(got) != 10 {
		t.Fatalf("expected output length 10, got %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}

	// max smaller than the suffix degrades to a plain cut.
	if got := truncate("abcdef", 2); got != "ab" {
		t.Fatalf("unexpected tiny-max result: %q", got)
	}
}

func TestValidateImages(t *testing.T) {
	if err := validateImages(nil); err != nil {
		t.Fatalf("no images should validate: %v", err)
	}

	ok := ImagePayload{Data: "aGVsbG8=", MimeType: "image/png", Size: 5}
	if err := validateImages([]ImagePayload{ok}); err != nil {
		t.Fatalf("valid image rejected: %v", err)
	}

	tooMany := []ImagePayload{ok, ok, ok, ok, ok}
	if err := validateImages(tooMany); err == nil {
		t.Fatalf("expected error for too many images")
	}

	badType := ImagePayload{Data: "aGVsbG8=", MimeType: "text/plain", Size: 5}
	if err := validateImages([]ImagePayload{badType}); err == nil {
		t.Fatalf("expected error for unsupported media type")
	}

	badSize := ImagePayload{Data: "aGVsbG8=", MimeType: "image/png", Size: maxImageBytes + 1}
	if err := validateImages([]ImagePayload{badSize}); err == nil {
		t.Fatalf("expected error for oversized image")
	}
}
