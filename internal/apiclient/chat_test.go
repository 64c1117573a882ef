package apiclient

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

func TestChatClientAssignsAndResumesConversation(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	liveToken := mintUnsignedToken(t, "user-1", "a@x.com", now.Add(time.Hour))

	var messageCount atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/api/user-1/chat" {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(request.Body).Decode(&body)

		// First message of a new thread carries no conversation id; the
		// backend assigns one that later messages must echo back.
		if messageCount.Add(1) == 1 {
			if _, present := body["conversation_id"]; present {
				t.Errorf("first message must not carry a conversation id, got %q", body["conversation_id"])
			}
		} else if body["conversation_id"] != "conv-1" {
			t.Errorf("expected resumed conversation conv-1, got %q", body["conversation_id"])
		}

		_ = json.NewEncoder(writer).Encode(map[string]string{
			"response":        "reply to " + body["message"],
			"conversation_id": "conv-1",
			"timestamp":       now.Format(time.RFC3339),
		})
	}))
	defer server.Close()

	manager, executor, store := newTestStack(t, server.URL, 0)
	seedCredentials(t, store, liveToken, "refresh-1")
	client := NewChatClient(executor, manager)
	ctx := context.Background()

	firstReply, firstErr := client.Send(ctx, "user-1", "hello", "")
	if firstErr != nil {
		t.Fatalf("unexpected send error: %v", firstErr)
	}
	if firstReply.ConversationID != "conv-1" || firstReply.Response != "reply to hello" {
		t.Fatalf("unexpected reply: %#v", firstReply)
	}
	if manager.Conversation(ctx) != "conv-1" {
		t.Fatalf("conversation handle must be persisted after the first reply")
	}

	if _, secondErr := client.Send(ctx, "user-1", "again", ""); secondErr != nil {
		t.Fatalf("unexpected send error: %v", secondErr)
	}
}

func TestChatClientPreconditions(t *testing.T) {
	t.Parallel()

	manager, executor, _ := newTestStack(t, "http://backend.invalid", 0)
	client := NewChatClient(executor, manager)
	ctx := context.Background()

	if _, err := client.Send(ctx, "", "hello", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for missing subject, got %v", err)
	}
	if _, err := client.Send(ctx, "user-1", "   ", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for blank message, got %v", err)
	}
}
