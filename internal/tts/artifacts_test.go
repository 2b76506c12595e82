package tts

import (
	"os"
	"strings"
	"testing"
)

func TestArtifactStoreSaveAndCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir, "/static/audio/")
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}

	urlA, err := store.Save("client-a", []byte("audio-a"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !strings.HasPrefix(urlA, "/static/audio/") {
		t.Fatalf("url = %q, want /static/audio/ prefix", urlA)
	}
	if _, err := store.Save("client-b", []byte("audio-b")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.CleanupClient("client-a"); err != nil {
		t.Fatalf("CleanupClient() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("remaining files = %d, want only client-b's artifact", len(entries))
	}
	if !strings.Contains(entries[0].Name(), "_client-b_") {
		t.Fatalf("remaining file = %q, want client-b artifact", entries[0].Name())
	}
}

func TestArtifactStoreSanitizesClientID(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir(), "/static/audio")
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	url, err := store.Save("../evil/../id", []byte("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if strings.Contains(url, "..") || strings.Contains(url[len("/static/audio/"):], "/") {
		t.Fatalf("url = %q, client id must be sanitized", url)
	}
}
