package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newChatFixture(t *testing.T, handler http.Handler, answerTTL time.Duration) (*ChatController, *Session, *[]Notice) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sess := NewSession()
	notices := &[]Notice{}
	ctrl := NewChatController(sess, NewClient(srv.URL, 5*time.Second, nil), func(n Notice) {
		*notices = append(*notices, n)
	}, nil, 10, answerTTL)
	return ctrl, sess, notices
}

func answerHandler(answer string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": answer})
	})
}

func TestAsk_AppendsPairedMessages(t *testing.T) {
	ctrl, sess, _ := newChatFixture(t, answerHandler("It is a report."), 0)
	sess.setDocument(Document{ID: "doc-1"})

	reply, err := ctrl.Ask(context.Background(), "what is this?", testIdentity())
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply.Role != RoleAssistant || reply.Content != "It is a report." {
		t.Fatalf("Ask() reply = %+v", reply)
	}

	msgs := sess.Messages()
	if len(msgs) != 3 {
		t.Fatalf("transcript has %d messages, want greeting + user + assistant", len(msgs))
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "what is this?" {
		t.Fatalf("user turn = %+v", msgs[1])
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Content != "It is a report." {
		t.Fatalf("assistant turn = %+v", msgs[2])
	}
	if ctrl.Waiting() {
		t.Fatal("controller should be idle after the cycle completes")
	}
}

func TestAsk_UserMessageVisibleBeforeAnswer(t *testing.T) {
	sess := NewSession()
	var seen int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// By the time the backend sees the request, the user's question
		// must already be in the transcript.
		msgs := sess.Messages()
		if len(msgs) == 2 && msgs[1].Role == RoleUser {
			atomic.StoreInt64(&seen, 1)
		}
		json.NewEncoder(w).Encode(map[string]string{"answer": "ok then"})
	}))
	defer srv.Close()

	ctrl := NewChatController(sess, NewClient(srv.URL, 5*time.Second, nil), nil, nil, 10, 0)
	sess.setDocument(Document{ID: "doc-1"})

	if _, err := ctrl.Ask(context.Background(), "what is this?", testIdentity()); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if atomic.LoadInt64(&seen) != 1 {
		t.Fatal("user message was not in the transcript when the backend was called")
	}
}

func TestAsk_ValidationMutatesNothing(t *testing.T) {
	var calls int64
	ctrl, sess, _ := newChatFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}), 0)
	sess.setDocument(Document{ID: "doc-1"})

	tests := []struct {
		name     string
		question string
		document bool
		identity Identity
		want     error
	}{
		{name: "empty", question: "   ", document: true, identity: testIdentity(), want: ErrEmptyQuestion},
		{name: "too short", question: "hi", document: true, identity: testIdentity(), want: ErrQuestionTooShort},
		{name: "too long", question: strings.Repeat("q", 501), document: true, identity: testIdentity(), want: ErrQuestionTooLong},
		{name: "no document", question: "valid question text", document: false, identity: testIdentity(), want: ErrNoActiveDocument},
		{name: "no identity", question: "valid question text", document: true, identity: Identity{}, want: ErrAuthenticationRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.document {
				sess.setDocument(Document{ID: "doc-1"})
			} else {
				sess.clearDocument()
			}
			before := len(sess.Messages())
			_, err := ctrl.Ask(context.Background(), tc.question, tc.identity)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Ask() error = %v, want %v", err, tc.want)
			}
			if after := len(sess.Messages()); after != before {
				t.Fatalf("transcript grew from %d to %d on a validation failure", before, after)
			}
		})
	}

	if n := atomic.LoadInt64(&calls); n != 0 {
		t.Fatalf("backend saw %d calls, want 0", n)
	}
}

func TestAsk_BackendFailureAppendsErrorTurn(t *testing.T) {
	ctrl, sess, notices := newChatFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "index unavailable"})
	}), 0)
	sess.setDocument(Document{ID: "doc-1"})

	reply, err := ctrl.Ask(context.Background(), "what is this?", testIdentity())
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("Ask() error = %v, want ErrQueryFailed", err)
	}
	want := "Sorry, I encountered an error: index unavailable"
	if reply.Content != want {
		t.Fatalf("reply content = %q, want %q", reply.Content, want)
	}

	msgs := sess.Messages()
	if len(msgs) != 3 {
		t.Fatalf("transcript has %d messages, want the failed turn recorded", len(msgs))
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Content != want {
		t.Fatalf("assistant turn = %+v", msgs[2])
	}
	if ctrl.Waiting() {
		t.Fatal("controller must return to idle after a failed query")
	}

	foundErrNotice := false
	for _, n := range *notices {
		if n.IsErr && n.Detail == "index unavailable" {
			foundErrNotice = true
		}
	}
	if !foundErrNotice {
		t.Fatalf("no transient failure notice raised, notices = %+v", *notices)
	}
}

func TestAsk_RejectsConcurrentAsk(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	ctrl, sess, _ := newChatFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		json.NewEncoder(w).Encode(map[string]string{"answer": "first answer"})
	}), 0)
	sess.setDocument(Document{ID: "doc-1"})

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.Ask(context.Background(), "first question", testIdentity())
		errCh <- err
	}()

	<-started
	_, err := ctrl.Ask(context.Background(), "second question", testIdentity())
	if !errors.Is(err, ErrQueryInFlight) {
		t.Fatalf("second Ask() error = %v, want ErrQueryInFlight", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first Ask() error = %v", err)
	}

	// Pairing preserved: exactly one user and one assistant turn landed.
	msgs := sess.Messages()
	if len(msgs) != 3 {
		t.Fatalf("transcript has %d messages, want 3", len(msgs))
	}
}

func TestAsk_AnswerCacheSkipsNetwork(t *testing.T) {
	var calls int64
	ctrl, sess, _ := newChatFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		json.NewEncoder(w).Encode(map[string]string{"answer": "cached answer"})
	}), time.Minute)
	sess.setDocument(Document{ID: "doc-1"})

	for i := 0; i < 2; i++ {
		reply, err := ctrl.Ask(context.Background(), "what is this?", testIdentity())
		if err != nil {
			t.Fatalf("Ask() #%d error = %v", i+1, err)
		}
		if reply.Content != "cached answer" {
			t.Fatalf("Ask() #%d reply = %q", i+1, reply.Content)
		}
	}

	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("backend saw %d calls, want 1 (second answer served from cache)", n)
	}
	// Both cycles still appended a full user/assistant pair.
	if got := len(sess.Messages()); got != 5 {
		t.Fatalf("transcript has %d messages, want 5", got)
	}
}

func TestAsk_CacheKeyedByDocument(t *testing.T) {
	var calls int64
	ctrl, sess, _ := newChatFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		json.NewEncoder(w).Encode(map[string]string{"answer": "per-doc answer"})
	}), time.Minute)

	sess.setDocument(Document{ID: "doc-1"})
	if _, err := ctrl.Ask(context.Background(), "what is this?", testIdentity()); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	sess.setDocument(Document{ID: "doc-2"})
	if _, err := ctrl.Ask(context.Background(), "what is this?", testIdentity()); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if n := atomic.LoadInt64(&calls); n != 2 {
		t.Fatalf("backend saw %d calls, want 2 (different documents must not share answers)", n)
	}
}

func TestChatRetryLast_RefusedWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	ctrl, sess, _ := newChatFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		json.NewEncoder(w).Encode(map[string]string{"answer": "late answer"})
	}), 0)
	sess.setDocument(Document{ID: "doc-1"})

	errCh := make(chan error, 1)
	go func() {
		_, err := ctrl.Ask(context.Background(), "what is this?", testIdentity())
		errCh <- err
	}()

	<-started
	if restored, ok := ctrl.RetryLast(); ok || restored != "" {
		t.Fatalf("RetryLast() mid-flight = %q, %v; want refusal", restored, ok)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	msgs := sess.Messages()
	if len(msgs) != 3 {
		t.Fatalf("transcript has %d messages, want 3", len(msgs))
	}
	if msgs[1].Role != RoleUser || msgs[1].Content != "what is this?" {
		t.Fatalf("user turn = %+v; the pending question must survive a mid-flight retry", msgs[1])
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Content != "late answer" {
		t.Fatalf("assistant turn = %+v", msgs[2])
	}
}

func TestChatRetryLast_AfterFailure(t *testing.T) {
	ctrl, sess, _ := newChatFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), 0)
	sess.setDocument(Document{ID: "doc-1"})

	if _, err := ctrl.Ask(context.Background(), "what is this?", testIdentity()); !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("Ask() error = %v, want ErrQueryFailed", err)
	}

	restored, ok := ctrl.RetryLast()
	if !ok || restored != "what is this?" {
		t.Fatalf("RetryLast() = %q, %v; want the failed question restored", restored, ok)
	}
	msgs := sess.Messages()
	if last := msgs[len(msgs)-1]; last.Role != RoleUser {
		t.Fatalf("transcript tail = %+v, want the user message kept", last)
	}
}
