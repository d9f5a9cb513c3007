package storage

import (
	"strings"
	"testing"
)

func TestAttachmentKeySanitizesName(t *testing.T) {
	key := AttachmentKey("../secret report (final).pdf")
	if !strings.HasPrefix(key, "chat-files/") {
		t.Fatalf("key prefix: %q", key)
	}
	if strings.Contains(key, "..") || strings.Contains(key, " ") || strings.Contains(key, "(") {
		t.Fatalf("unsanitized key: %q", key)
	}
	if !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("extension lost: %q", key)
	}
}

func TestAttachmentKeyUnique(t *testing.T) {
	if AttachmentKey("a.png") == AttachmentKey("a.png") {
		t.Fatal("keys must not collide for identical names")
	}
}

func TestAttachmentKeyEmptyName(t *testing.T) {
	key := AttachmentKey("")
	if !strings.HasPrefix(key, "chat-files/") || !strings.HasSuffix(key, "_file") {
		t.Fatalf("fallback name missing: %q", key)
	}
}
