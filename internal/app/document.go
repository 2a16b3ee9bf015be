package app

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// Document is a backend-ingested file reference. A locally selected file
// is not a Document until the backend has acknowledged it with an id.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Identity is the authenticated user id and bearer token pair required
// to call the backend. It is supplied by the credential store; this
// package never reads it from ambient state.
type Identity struct {
	UserID string
	Token  string
}

func (id Identity) Present() bool {
	return id.UserID != ""
}

// FileHandle describes a locally selected file before upload: declared
// size, declared MIME type, and a way to open its contents. Validation
// runs against the declared attributes only.
type FileHandle struct {
	Name string
	Size int64
	MIME string

	Open func() (io.ReadCloser, error)
}

// NewFileHandle stats path and derives the declared MIME type from the
// file extension, the closest CLI analog to a browser's declared type.
func NewFileHandle(path string) (FileHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileHandle{}, err
	}
	ext := filepath.Ext(path)
	mimeType := mime.TypeByExtension(ext)
	switch ext {
	case ".pdf":
		mimeType = "application/pdf"
	case ".txt":
		mimeType = "text/plain"
	case ".doc":
		mimeType = "application/msword"
	case ".docx":
		mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return FileHandle{
		Name: filepath.Base(path),
		Size: info.Size(),
		MIME: mimeType,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}
