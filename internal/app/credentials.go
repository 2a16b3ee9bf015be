package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// CredentialStore persists the authenticated identity under the same
// fixed keys the web client keeps in localStorage: "user" holds a
// JSON-encoded object with an "id" field, "authToken" holds the raw
// bearer token. The store owns durability only; token issuance belongs
// to the backend.
type CredentialStore struct {
	Path string
}

type credentialFile struct {
	User           json.RawMessage `json:"user,omitempty"`
	AuthToken      string          `json:"authToken,omitempty"`
	LastDocumentID string          `json:"lastDocumentId,omitempty"`
}

func NewCredentialStore(path string) *CredentialStore {
	if path == "" {
		if base, err := os.UserConfigDir(); err == nil {
			path = filepath.Join(base, "docai", "credentials.json")
		} else {
			path = filepath.Join(os.TempDir(), "docai", "credentials.json")
		}
	}
	return &CredentialStore{Path: path}
}

func (c *CredentialStore) load() (credentialFile, error) {
	var f credentialFile
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return credentialFile{}, err
	}
	return f, nil
}

func (c *CredentialStore) save(f credentialFile) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0o600)
}

// Identity extracts the user id and token. A missing or malformed file
// yields an empty identity, not an error; callers treat that as
// "not logged in".
func (c *CredentialStore) Identity() Identity {
	f, err := c.load()
	if err != nil {
		return Identity{}
	}
	var user struct {
		ID string `json:"id"`
	}
	if len(f.User) > 0 {
		_ = json.Unmarshal(f.User, &user)
	}
	return Identity{UserID: user.ID, Token: f.AuthToken}
}

// SetIdentity stores the backend's user object and token verbatim.
func (c *CredentialStore) SetIdentity(user json.RawMessage, token string) error {
	f, err := c.load()
	if err != nil {
		f = credentialFile{}
	}
	f.User = user
	f.AuthToken = token
	return c.save(f)
}

// Clear removes the stored identity but keeps the file's other state.
func (c *CredentialStore) Clear() error {
	f, err := c.load()
	if err != nil {
		f = credentialFile{}
	}
	f.User = nil
	f.AuthToken = ""
	return c.save(f)
}

// LastDocumentID remembers the most recently uploaded document so
// one-shot `ask` invocations can omit --doc.
func (c *CredentialStore) LastDocumentID() string {
	f, err := c.load()
	if err != nil {
		return ""
	}
	return f.LastDocumentID
}

func (c *CredentialStore) SetLastDocumentID(id string) error {
	f, err := c.load()
	if err != nil {
		f = credentialFile{}
	}
	f.LastDocumentID = id
	return c.save(f)
}
