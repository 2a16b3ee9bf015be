package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// errorPrefix wraps every failed turn's assistant message so the
// transcript always shows that a question got a terminal response.
const errorPrefix = "Sorry, I encountered an error: "

// ChatController validates and submits questions about the active
// document. Each completed cycle appends exactly one user message and
// one assistant (or error) message; a second Ask while one is waiting
// is rejected to keep question/answer pairing intact.
type ChatController struct {
	session *Session
	client  *Client
	notify  Notifier
	log     *zap.Logger

	queryLimit int
	answers    *cache.Cache

	mu      sync.Mutex
	waiting bool
}

func NewChatController(session *Session, client *Client, notify Notifier, log *zap.Logger, queryLimit int, answerTTL time.Duration) *ChatController {
	if log == nil {
		log = zap.NewNop()
	}
	if queryLimit <= 0 {
		queryLimit = 10
	}
	var answers *cache.Cache
	if answerTTL > 0 {
		answers = cache.New(answerTTL, 10*time.Minute)
	}
	return &ChatController{
		session:    session,
		client:     client,
		notify:     notify,
		log:        log,
		queryLimit: queryLimit,
		answers:    answers,
	}
}

// Waiting reports whether an answer is pending.
func (c *ChatController) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// Ask validates the question, appends it to the transcript, and fetches
// an answer. Validation failures mutate nothing so the caller can leave
// the input buffer untouched. On any backend or transport failure the
// assistant message wraps the failure detail and a QueryFailed notice is
// emitted; the returned Message is the assistant turn either way.
func (c *ChatController) Ask(ctx context.Context, question string, identity Identity) (Message, error) {
	c.mu.Lock()
	if c.waiting {
		c.mu.Unlock()
		return Message{}, ErrQueryInFlight
	}
	c.mu.Unlock()

	if err := ValidateQuestion(question); err != nil {
		c.notify.send(Notice{Title: "Invalid Input", Detail: err.Error(), IsErr: true})
		return Message{}, err
	}
	doc := c.session.ActiveDocument()
	if doc == nil || doc.ID == "" {
		c.notify.send(Notice{Title: "No Document", Detail: ErrNoActiveDocument.Error(), IsErr: true})
		return Message{}, ErrNoActiveDocument
	}
	if err := ValidateIdentity(identity); err != nil {
		c.notify.send(Notice{Title: "Authentication Required", Detail: err.Error(), IsErr: true})
		return Message{}, err
	}

	c.mu.Lock()
	if c.waiting {
		c.mu.Unlock()
		return Message{}, ErrQueryInFlight
	}
	c.waiting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waiting = false
		c.mu.Unlock()
	}()

	// The question is visible in the transcript before the answer
	// arrives.
	c.session.append(newMessage(RoleUser, question))

	answer, cached := c.cachedAnswer(doc.ID, question)
	if !cached {
		var err error
		answer, err = c.client.Query(ctx, question, doc.ID, identity, c.queryLimit)
		if err != nil {
			c.log.Error("query failed", zap.String("document_id", doc.ID), zap.Error(err))
			reply := newMessage(RoleAssistant, errorPrefix+FailureDetail(err))
			c.session.append(reply)
			c.notify.send(Notice{Title: "Error", Detail: FailureDetail(err), IsErr: true})
			return reply, err
		}
		c.storeAnswer(doc.ID, question, answer)
	}

	reply := newMessage(RoleAssistant, answer)
	c.session.append(reply)
	return reply, nil
}

// RetryLast drops the most recent assistant turn and hands back the
// triggering user text for the input buffer. Refused while an answer is
// pending: the transcript tail is the in-flight question, and removing
// it would leave the arriving answer unpaired.
func (c *ChatController) RetryLast() (restored string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting {
		return "", false
	}
	return c.session.RetryLast()
}

func answerKey(documentID, question string) string {
	return documentID + "\n" + strings.TrimSpace(question)
}

func (c *ChatController) cachedAnswer(documentID, question string) (string, bool) {
	if c.answers == nil {
		return "", false
	}
	if v, found := c.answers.Get(answerKey(documentID, question)); found {
		return v.(string), true
	}
	return "", false
}

func (c *ChatController) storeAnswer(documentID, question, answer string) {
	if c.answers == nil {
		return
	}
	c.answers.Set(answerKey(documentID, question), answer, cache.DefaultExpiration)
}
