package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newUploadFixture(t *testing.T, handler http.Handler) (*UploadController, *Session, *httptest.Server, *[]Notice) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := NewSession()
	notices := &[]Notice{}
	ctrl := NewUploadController(sess, NewClient(srv.URL, 5*time.Second, nil), func(n Notice) {
		*notices = append(*notices, n)
	}, nil)
	return ctrl, sess, srv, notices
}

func uploadOKHandler(id string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"document": map[string]any{"id": id, "filename": "a.pdf", "file_type": "application/pdf"},
		})
	})
}

func TestSelectFile_Success_ReplacesActiveDocument(t *testing.T) {
	ctrl, sess, _, _ := newUploadFixture(t, uploadOKHandler("doc-1"))
	sess.setDocument(Document{ID: "doc-0"})

	doc, err := ctrl.SelectFile(context.Background(), memFile("a.pdf", "application/pdf", "x"), testIdentity(), nil)
	if err != nil {
		t.Fatalf("SelectFile() error = %v", err)
	}
	if doc.ID != "doc-1" {
		t.Fatalf("SelectFile() doc = %+v", doc)
	}
	if active := sess.ActiveDocument(); active == nil || active.ID != "doc-1" {
		t.Fatalf("active document = %+v, want doc-1", active)
	}
	if ctrl.Uploading() {
		t.Fatal("controller should be idle after a completed upload")
	}
}

func TestSelectFile_ValidationIssuesNoNetworkCall(t *testing.T) {
	var calls int64
	ctrl, sess, _, _ := newUploadFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))

	tests := []struct {
		name     string
		fh       FileHandle
		identity Identity
		want     error
	}{
		{
			name:     "missing identity checked first",
			fh:       memFile("a.bin", "application/octet-stream", "x"),
			identity: Identity{},
			want:     ErrAuthenticationRequired,
		},
		{
			name:     "oversized file",
			fh:       FileHandle{Name: "big.pdf", Size: MaxFileSize + 1, MIME: "application/pdf"},
			identity: testIdentity(),
			want:     ErrFileTooLarge,
		},
		{
			name:     "unsupported type",
			fh:       memFile("a.png", "image/png", "x"),
			identity: testIdentity(),
			want:     ErrUnsupportedFileType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ctrl.SelectFile(context.Background(), tc.fh, tc.identity, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("SelectFile() error = %v, want %v", err, tc.want)
			}
		})
	}

	if n := atomic.LoadInt64(&calls); n != 0 {
		t.Fatalf("backend saw %d calls, want 0", n)
	}
	if sess.ActiveDocument() != nil {
		t.Fatal("validation failures must not touch the session")
	}
	if ctrl.Uploading() {
		t.Fatal("controller should be idle after validation failures")
	}
}

func TestSelectFile_FailureKeepsPreviousDocument(t *testing.T) {
	ctrl, sess, _, notices := newUploadFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "ingestion offline"})
	}))
	sess.setDocument(Document{ID: "doc-0", Filename: "old.pdf"})

	_, err := ctrl.SelectFile(context.Background(), memFile("a.pdf", "application/pdf", "x"), testIdentity(), nil)
	if !errors.Is(err, ErrUploadRejected) {
		t.Fatalf("SelectFile() error = %v, want ErrUploadRejected", err)
	}
	if active := sess.ActiveDocument(); active == nil || active.ID != "doc-0" {
		t.Fatalf("active document = %+v, want the previous doc-0", active)
	}
	if ctrl.Uploading() {
		t.Fatal("controller must return to idle after a failed upload")
	}

	found := false
	for _, n := range *notices {
		if n.IsErr && n.Title == "Upload Failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no Upload Failed notice raised, notices = %+v", *notices)
	}
}

func TestSelectFile_RejectsConcurrentUpload(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	ctrl, _, _, _ := newUploadFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		json.NewEncoder(w).Encode(map[string]any{
			"document": map[string]any{"id": "doc-1"},
		})
	}))

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.SelectFile(context.Background(), memFile("a.pdf", "application/pdf", "x"), testIdentity(), nil)
		errCh <- err
	}()

	<-started
	_, err := ctrl.SelectFile(context.Background(), memFile("b.txt", "text/plain", "y"), testIdentity(), nil)
	if !errors.Is(err, ErrUploadInFlight) {
		t.Fatalf("second SelectFile() error = %v, want ErrUploadInFlight", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first SelectFile() error = %v", err)
	}
}

func TestRemoveActiveDocument_Idempotent(t *testing.T) {
	ctrl, sess, _, _ := newUploadFixture(t, uploadOKHandler("doc-1"))
	sess.setDocument(Document{ID: "doc-1"})

	ctrl.RemoveActiveDocument()
	if sess.ActiveDocument() != nil {
		t.Fatal("document still active after removal")
	}
	ctrl.RemoveActiveDocument()
	if sess.ActiveDocument() != nil {
		t.Fatal("second removal changed the observable state")
	}
}

func TestRemoveActiveDocument_KeepsConversation(t *testing.T) {
	ctrl, sess, _, _ := newUploadFixture(t, uploadOKHandler("doc-1"))
	sess.setDocument(Document{ID: "doc-1"})
	sess.append(newMessage(RoleUser, "what is this?"))

	ctrl.RemoveActiveDocument()
	if got := len(sess.Messages()); got != 2 {
		t.Fatalf("conversation has %d messages after removal, want 2", got)
	}
}
