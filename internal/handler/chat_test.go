package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"renterchat/internal/model"
	"renterchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeReplier struct {
	resp   *model.ChatResponse
	err    error
	deltas []string
	got    *model.ChatRequest
}

func (f *fakeReplier) Reply(_ context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeReplier) ReplyStream(_ context.Context, req *model.ChatRequest, onDelta func(string) error) (*model.ChatResponse, error) {
	f.got = req
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return nil, err
		}
	}
	return f.resp, f.err
}

func newChatRouter(t *testing.T, agent Replier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(agent, zaptest.NewLogger(t))
	r := gin.New()
	r.Use(RequestID())
	r.POST("/api/reply", h.Reply)
	r.POST("/api/reply/stream", h.ReplyStream)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChatHandler_Reply(t *testing.T) {
	agent := &fakeReplier{resp: &model.ChatResponse{
		Reply:  "Which of our communities are you interested in?",
		Action: model.ActionAskClarification,
	}}
	r := newChatRouter(t, agent)

	w := postJSON(r, "/api/reply", `{"client_id":"c-1","message":"2 bedrooms with cats","preferences":{"bedrooms":2}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.ActionAskClarification, resp.Action)
	assert.Nil(t, resp.ProposedTime)

	require.NotNil(t, agent.got)
	assert.Equal(t, "c-1", agent.got.ClientID)
	require.NotNil(t, agent.got.Preferences)
	assert.Equal(t, 2, *agent.got.Preferences.Bedrooms)
}

func TestChatHandler_ReplyErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed json", `{"message":`, nil, http.StatusBadRequest},
		{"invalid envelope", `{"message":""}`, fmt.Errorf("%w: message is empty", service.ErrInvalidEnvelope), http.StatusBadRequest},
		{"pipeline failure", `{"client_id":"c","message":"hi"}`, errors.New("backend down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newChatRouter(t, &fakeReplier{err: tt.err})
			w := postJSON(r, "/api/reply", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestChatHandler_RequestIDIsEchoed(t *testing.T) {
	r := newChatRouter(t, &fakeReplier{resp: &model.ChatResponse{Reply: "ok", Action: model.ActionAskClarification}})

	req := httptest.NewRequest(http.MethodPost, "/api/reply", bytes.NewBufferString(`{"client_id":"c","message":"hi"}`))
	req.Header.Set(RequestIDHeader, "trace-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-42", w.Header().Get(RequestIDHeader))
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}

func TestChatHandler_ReplyStream(t *testing.T) {
	agent := &fakeReplier{
		deltas: []string{"Cats are ", "welcome!"},
		resp:   &model.ChatResponse{Reply: "Cats are welcome!", Action: model.ActionAskClarification},
	}
	r := newChatRouter(t, agent)

	w := postJSON(r, "/api/reply/stream", `{"lead":{"name":"Jane Doe","email":"Jane@Example.com"},"message":"cats ok?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	events := parseSSE(w.Body.String())
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.name
	}
	assert.Equal(t, []string{"start", "delta", "delta", "result", "done"}, names)
	assert.JSONEq(t, `{"client_id":"jane@example.com"}`, events[0].data)
	assert.JSONEq(t, `{"text":"Cats are "}`, events[1].data)

	var result model.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(events[3].data), &result))
	assert.Equal(t, "Cats are welcome!", result.Reply)
}

func TestChatHandler_ReplyStreamRejectsEnvelopeBeforeStreaming(t *testing.T) {
	agent := &fakeReplier{resp: &model.ChatResponse{Reply: "ok"}}
	r := newChatRouter(t, agent)

	for _, body := range []string{`{"message":"hi"}`, `{"client_id":"c","message":"  "}`} {
		w := postJSON(r, "/api/reply/stream", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.NotContains(t, w.Header().Get("Content-Type"), "text/event-stream")
		assert.Contains(t, w.Body.String(), "invalid request envelope")
	}
	assert.Nil(t, agent.got, "the agent is never called")
}

func TestChatHandler_ReplyStreamError(t *testing.T) {
	r := newChatRouter(t, &fakeReplier{err: errors.New("store unavailable")})

	w := postJSON(r, "/api/reply/stream", `{"client_id":"c","message":"hi"}`)

	events := parseSSE(w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "start", events[0].name)
	assert.Equal(t, "error", events[1].name)
	assert.Contains(t, events[1].data, "store unavailable")
}

func TestChatHandler_ReplyStreamReplacesPartialText(t *testing.T) {
	agent := &fakeReplier{
		deltas: []string{"Cats are ", "wel"},
		resp:   &model.ChatResponse{Reply: service.FallbackReply, Action: model.ActionHandoffHuman},
	}
	r := newChatRouter(t, agent)

	w := postJSON(r, "/api/reply/stream", `{"client_id":"c","message":"cats ok?"}`)

	events := parseSSE(w.Body.String())
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.name
	}
	assert.Equal(t, []string{"start", "delta", "delta", "replace", "result", "done"}, names)

	var replaced struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[3].data), &replaced))
	assert.Equal(t, service.FallbackReply, replaced.Text)
}
