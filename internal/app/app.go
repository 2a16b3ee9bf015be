package app

import (
	"time"

	"go.uber.org/zap"
)

// Application wires the session, backend client, credential store and
// both controllers together for the TUI and the one-shot commands.
type Application struct {
	Config      Config
	Logger      *zap.Logger
	Client      *Client
	Session     *Session
	Credentials *CredentialStore
	Upload      *UploadController
	Chat        *ChatController

	notify Notifier
}

func NewApplication(cfg Config, notify Notifier) *Application {
	logger := NewLogger(LogPathFor(cfg))
	client := NewClient(ResolveBaseURL(cfg), time.Duration(cfg.TimeoutSeconds)*time.Second, logger)
	session := NewSession()

	return &Application{
		Config:      cfg,
		Logger:      logger,
		Client:      client,
		Session:     session,
		Credentials: NewCredentialStore(""),
		Upload:      NewUploadController(session, client, notify, logger),
		Chat:        NewChatController(session, client, notify, logger, cfg.QueryLimit, time.Duration(cfg.AnswerCacheTTL)*time.Second),
		notify:      notify,
	}
}

// SetNotifier replaces the notice sink after construction. The TUI
// installs its own once its program is running.
func (a *Application) SetNotifier(notify Notifier) {
	a.notify = notify
	a.Upload.notify = notify
	a.Chat.notify = notify
}

// Identity reads the stored identity. Empty when not logged in.
func (a *Application) Identity() Identity {
	return a.Credentials.Identity()
}

// MockMode reports whether the client answers from canned responses.
func (a *Application) MockMode() bool {
	return a.Client.mock()
}
