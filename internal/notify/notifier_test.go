package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name string
	err  error
	mu   sync.Mutex
	got  []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventSlowExecution, " "}, nil)

	require.NoError(t, n.Notify(context.Background(), EventTradeExecuted, "trade", ""))
	require.NoError(t, n.Notify(context.Background(), EventSlowExecution, "slow", ""))
	assert.Equal(t, []string{"slow"}, s.got)
}

func TestNotifyCollectsSenderErrors(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.Notify(context.Background(), EventWatchdogError, "x", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Equal(t, []string{"x"}, good.got)
}

func TestGoDeliversInBackground(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, nil)
	n.Go(EventOrderAutoCancelled, "cancelled", "")
	n.Wait()
	assert.Equal(t, []string{"cancelled"}, s.got)

	var nilNotifier *Notifier
	assert.NotPanics(t, func() {
		nilNotifier.Go(EventOrderAutoCancelled, "x", "")
		nilNotifier.Wait()
	})
}

func TestDiscordSenderPostsContent(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "SLOW EXECUTION", "buy took 612ms"))
	assert.Equal(t, "**SLOW EXECUTION**\nbuy took 612ms", payload["content"])
}

func TestTelegramSenderReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	tg := NewTelegramSender("tok", "chat")
	tg.endpoint = srv.URL
	err := tg.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: unexpected status 401")
}
