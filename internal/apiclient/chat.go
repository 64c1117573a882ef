package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sarwatafreen/todo-app-website/internal/session"
)

// ChatReply is the backend's answer to one chat message.
type ChatReply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

// ChatClient sends chat messages scoped to one subject. The conversation
// handle is opaque: the backend assigns it on the first message of a new
// thread, and the client persists it so later messages resume the thread.
type ChatClient struct {
	executor *Executor
	sessions *session.Manager
}

// NewChatClient constructs a ChatClient.
func NewChatClient(executor *Executor, sessions *session.Manager) *ChatClient {
	return &ChatClient{executor: executor, sessions: sessions}
}

// Send posts one message. When conversationID is empty the persisted handle
// for the subject is used; the handle returned by the backend is persisted
// for the next message.
func (client *ChatClient) Send(ctx context.Context, subject string, message string, conversationID string) (*ChatReply, error) {
	if invalidErr := requireSubject(subject); invalidErr != nil {
		return nil, invalidErr
	}
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, newError(KindInvalidRequest, 0, "message cannot be empty")
	}
	if conversationID == "" {
		conversationID = client.sessions.Conversation(ctx)
	}

	requestBody := map[string]string{"message": trimmed}
	if conversationID != "" {
		requestBody["conversation_id"] = conversationID
	}

	response, doErr := client.executor.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/%s/chat", url.PathEscape(subject)),
		Body:   requestBody,
	})
	if doErr != nil {
		return nil, doErr
	}

	var reply ChatReply
	if decodeErr := response.DecodeJSON(&reply); decodeErr != nil {
		return nil, newError(KindServer, response.Status, "malformed chat payload")
	}
	if rememberErr := client.sessions.RememberConversation(ctx, reply.ConversationID); rememberErr != nil {
		return nil, rememberErr
	}
	return &reply, nil
}
