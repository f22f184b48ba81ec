package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestSendMediaGroupParsesResultList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMediaGroup") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":[{"message_id":1,"date":100},{"message_id":2,"date":101}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", srv.URL)
	path := writeTempFile(t, "a.jpg", []byte("fake-jpeg-bytes"))

	results, err := client.SendMediaGroup(context.Background(), 12345, []MediaItem{
		{WallpaperID: "w1", Path: path},
	})
	if err != nil {
		t.Fatalf("SendMediaGroup: %v", err)
	}
	if len(results) != 2 || results[0].MessageID != 1 || results[1].MessageID != 2 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSendDocumentParsesSingleResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":200}}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", srv.URL)
	path := writeTempFile(t, "b.jpg", []byte("fake-jpeg-bytes"))

	result, err := client.SendDocument(context.Background(), 12345, MediaItem{WallpaperID: "w1", Path: path, Thumbnail: []byte("thumb")})
	if err != nil {
		t.Fatalf("SendDocument: %v", err)
	}
	if result.MessageID != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSendDocumentRejectedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", srv.URL)
	path := writeTempFile(t, "c.jpg", []byte("fake-jpeg-bytes"))

	if _, err := client.SendDocument(context.Background(), 12345, MediaItem{WallpaperID: "w1", Path: path}); err == nil {
		t.Fatal("expected error for rejected response")
	}
}
