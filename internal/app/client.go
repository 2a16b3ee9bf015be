package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MockBaseURL switches the client to canned in-process responses, the
// same trick the backend-less demo mode uses everywhere in this repo.
const MockBaseURL = "mock://"

// Client talks to the DocAI backend. It is a thin transport: all
// session state lives in the controllers that call it.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	log *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if baseURL != MockBaseURL {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) mock() bool {
	return c.BaseURL == MockBaseURL
}

type uploadResponse struct {
	Document   *Document `json:"document"`
	DocumentID string    `json:"documentId"`
	Error      string    `json:"error"`
}

type queryResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// progressReader reports the percentage of body bytes the transport has
// consumed. The value is best-effort; only terminal success or failure
// carries state-machine meaning.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	onChange func(pct int)
	last     int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.onChange != nil && p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last {
			p.last = pct
			p.onChange(pct)
		}
	}
	return n, err
}

// Upload sends the file and user id as a multipart payload to
// POST {base}/file/upload and returns the acknowledged Document.
// onProgress, when non-nil, receives values in [0,100].
func (c *Client) Upload(ctx context.Context, fh FileHandle, identity Identity, onProgress func(pct int)) (*Document, error) {
	if c.mock() {
		return c.mockUpload(fh, onProgress)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer src.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fh.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if err := writer.WriteField("userId", identity.UserID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	reader := &progressReader{r: &body, total: int64(body.Len()), onChange: onProgress, last: -1}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/file/upload", reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.ContentLength = reader.total
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %w", ErrUploadRejected, backendError(resp.StatusCode, raw))
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid response from server", ErrUploadRejected)
	}
	doc := out.Document
	if doc == nil && out.DocumentID != "" {
		doc = &Document{ID: out.DocumentID, Filename: fh.Name, FileType: fh.MIME, UploadedAt: time.Now()}
	}
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("%w: invalid response from server", ErrUploadRejected)
	}
	if onProgress != nil {
		onProgress(100)
	}
	c.log.Info("document uploaded", zap.String("document_id", doc.ID), zap.String("filename", doc.Filename))
	return doc, nil
}

// Query posts a question about a document to POST {base}/query/query.
// limit bounds how many source fragments the backend may use.
func (c *Client) Query(ctx context.Context, question, documentID string, identity Identity, limit int) (string, error) {
	if c.mock() {
		return c.mockQuery(question, documentID)
	}

	payload, err := json.Marshal(map[string]any{
		"query":      question,
		"documentId": documentID,
		"userId":     identity.UserID,
		"limit":      limit,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/query/query", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %w", ErrQueryFailed, backendError(resp.StatusCode, raw))
	}

	var out queryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: invalid response from server", ErrQueryFailed)
	}
	if out.Answer == "" {
		return "", fmt.Errorf("%w: no answer received from the server", ErrQueryFailed)
	}
	return out.Answer, nil
}

// Delete removes an ingested document via DELETE {base}/file/{id}.
func (c *Client) Delete(ctx context.Context, documentID string, identity Identity) error {
	if c.mock() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/file/"+documentID, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return backendError(resp.StatusCode, raw)
	}
	return nil
}

// ListDocuments fetches the caller's ingested documents from
// GET {base}/documents.
func (c *Client) ListDocuments(ctx context.Context, identity Identity) ([]Document, error) {
	if c.mock() {
		return []Document{
			{ID: "mock-doc-1", Filename: "report.pdf", FileType: "application/pdf", UploadedAt: time.Now()},
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/documents", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(resp.StatusCode, raw)
	}

	// The endpoint returns either a bare array or {documents: [...]}.
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err == nil {
		return docs, nil
	}
	var wrapped struct {
		Documents []Document `json:"documents"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: invalid response from server", ErrNetwork)
	}
	return wrapped.Documents, nil
}

// AuthResult is the backend's answer to a successful login or signup:
// the user object verbatim plus the bearer token.
type AuthResult struct {
	User  json.RawMessage
	Token string
}

// Login exchanges email and password for an identity via
// POST {base}/auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	if c.mock() {
		return mockAuthResult(email), nil
	}
	return c.auth(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Signup registers a new account via POST {base}/auth/signup.
func (c *Client) Signup(ctx context.Context, name, email, password string) (AuthResult, error) {
	if c.mock() {
		return mockAuthResult(email), nil
	}
	return c.auth(ctx, "/auth/signup", map[string]string{"name": name, "email": email, "password": password})
}

// Logout tells the backend to invalidate the token. Best-effort: the
// local credentials are cleared regardless.
func (c *Client) Logout(ctx context.Context, identity Identity) error {
	if c.mock() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if identity.Token != "" {
		req.Header.Set("Authorization", "Bearer "+identity.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return backendError(resp.StatusCode, raw)
	}
	return nil
}

func (c *Client) auth(ctx context.Context, path string, form map[string]string) (AuthResult, error) {
	payload, err := json.Marshal(form)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AuthResult{}, backendError(resp.StatusCode, raw)
	}

	var out struct {
		Token string          `json:"token"`
		User  json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Token == "" {
		return AuthResult{}, fmt.Errorf("%w: invalid response from server", ErrNetwork)
	}
	return AuthResult{User: out.User, Token: out.Token}, nil
}

func backendError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	return &BackendError{Status: status, Message: er.Error}
}

// Mock responses for offline demos and tests.

func (c *Client) mockUpload(fh FileHandle, onProgress func(pct int)) (*Document, error) {
	if onProgress != nil {
		for _, pct := range []int{25, 50, 75, 100} {
			onProgress(pct)
		}
	}
	return &Document{
		ID:         "mock-" + uuid.NewString()[:8],
		Filename:   fh.Name,
		FileType:   fh.MIME,
		UploadedAt: time.Now(),
	}, nil
}

func (c *Client) mockQuery(question, documentID string) (string, error) {
	return fmt.Sprintf("(mock) Based on document %s, here is what I found about %q: "+
		"the document discusses this topic in its opening sections.", documentID, strings.TrimSpace(question)), nil
}

func mockAuthResult(email string) AuthResult {
	user, _ := json.Marshal(map[string]string{"id": "mock-user-1", "email": email})
	return AuthResult{User: user, Token: "mock-token"}
}
