package app

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// UploadController validates a locally selected file, transmits it, and
// installs the acknowledged Document into the session. At most one
// upload is in flight; a second SelectFile while Uploading is rejected.
type UploadController struct {
	session *Session
	client  *Client
	notify  Notifier
	log     *zap.Logger

	mu        sync.Mutex
	uploading bool
}

func NewUploadController(session *Session, client *Client, notify Notifier, log *zap.Logger) *UploadController {
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadController{session: session, client: client, notify: notify, log: log}
}

// Uploading reports whether a transfer is in flight.
func (u *UploadController) Uploading() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploading
}

// SelectFile runs the pre-validation chain (identity, size, MIME type)
// synchronously, then uploads. On success the returned Document has
// replaced any previously active one; on failure the session keeps its
// previous document. The controller is back in Idle on every return.
func (u *UploadController) SelectFile(ctx context.Context, fh FileHandle, identity Identity, onProgress func(pct int)) (*Document, error) {
	u.mu.Lock()
	if u.uploading {
		u.mu.Unlock()
		return nil, ErrUploadInFlight
	}
	u.uploading = true
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		u.uploading = false
		u.mu.Unlock()
	}()

	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if err := ValidateFile(fh.Size, fh.MIME); err != nil {
		return nil, err
	}

	doc, err := u.client.Upload(ctx, fh, identity, onProgress)
	if err != nil {
		u.log.Error("upload failed", zap.String("filename", fh.Name), zap.Error(err))
		u.notify.send(Notice{Title: "Upload Failed", Detail: FailureDetail(err), IsErr: true})
		return nil, err
	}

	u.session.setDocument(*doc)
	u.notify.send(Notice{Title: "File uploaded successfully", Detail: "You can now ask questions about your document"})
	return doc, nil
}

// RemoveActiveDocument clears the session's document slot. Idempotent;
// conversation history is untouched.
func (u *UploadController) RemoveActiveDocument() {
	u.session.clearDocument()
}
