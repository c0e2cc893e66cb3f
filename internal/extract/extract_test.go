package extract

import (
	"strings"
	"testing"
)

func TestFromBytesEmpty(t *testing.T) {
	if _, err := FromBytes(nil); err == nil {
		t.Fatalf("expected error for empty data")
	}
	if _, err := FromBytes([]byte{}); err == nil {
		t.Fatalf("expected error for empty data")
	}
}

func TestFromBytesNotAPDF(t *testing.T) {
	_, err := FromBytes([]byte("plain text pretending to be a pdf"))
	if err == nil {
		t.Fatalf("expected parse error for non-PDF data")
	}
	if !strings.Contains(err.Error(), "parse pdf") {
		t.Fatalf("unexpected error: %v", err)
	}
}
