package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"agenthub/internal/domain"
)

func TestSend(t *testing.T) {
	var gotAuth string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewAPISender(srv.URL, "api-token", slog.Default())
	err := sender.Send(context.Background(), domain.OutboundMessage{
		UserID:  "u1",
		To:      "chat-42",
		Content: "hello there",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotAuth != "Bearer api-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.To != "chat-42" || gotBody.Content != "hello there" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendErrorPrefix(t *testing.T) {
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewAPISender(srv.URL, "", slog.Default())
	err := sender.Send(context.Background(), domain.OutboundMessage{
		To:      "chat-42",
		Content: "something broke",
		IsError: true,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotBody.Content != "Error: something broke" {
		t.Errorf("content = %q", gotBody.Content)
	}
}

func TestSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	sender := NewAPISender(srv.URL, "", slog.Default())
	err := sender.Send(context.Background(), domain.OutboundMessage{To: "chat-42", Content: "x"})
	if !errors.Is(err, domain.ErrChannelSend) {
		t.Errorf("err = %v, want ErrChannelSend", err)
	}
}

func TestSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	sender := NewAPISender(url, "", slog.Default())
	err := sender.Send(context.Background(), domain.OutboundMessage{To: "chat-42", Content: "x"})
	if !errors.Is(err, domain.ErrChannelSend) {
		t.Errorf("err = %v, want ErrChannelSend", err)
	}
}
