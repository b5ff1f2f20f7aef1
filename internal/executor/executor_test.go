package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rezkam/jobcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_SuccessParsesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHTTP(nil)
	out, err := h.Execute(context.Background(), domain.Bag{"url": srv.URL, "method": "GET"})
	require.NoError(t, err)
	assert.Equal(t, 200, out["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, out["body"])
}

func TestHTTP_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTP(nil)
	_, err := h.Execute(context.Background(), domain.Bag{"url": srv.URL})
	require.Error(t, err)
}

func TestHTTP_MissingURL(t *testing.T) {
	h := NewHTTP(nil)
	_, err := h.Execute(context.Background(), domain.Bag{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigurationError)
}

func TestWebhook_SignsBodyWhenSecretPresent(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(nil)
	_, err := wh.Execute(context.Background(), domain.Bag{
		"url":    srv.URL,
		"body":   map[string]any{"event": "job.completed"},
		"secret": "shh",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, gotSig)
}

func TestScript_SuccessCapturesStdout(t *testing.T) {
	s := NewScript()
	out, err := s.Execute(context.Background(), domain.Bag{
		"command": "echo",
		"args":    []any{"hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out["stdout"])
}

func TestScript_NonZeroExitIsError(t *testing.T) {
	s := NewScript()
	_, err := s.Execute(context.Background(), domain.Bag{"command": "false"})
	require.Error(t, err)
}

func TestMail_StubSenderReturnsMessageID(t *testing.T) {
	m := NewMail(nil)
	out, err := m.Execute(context.Background(), domain.Bag{"to": "a@example.com", "subject": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", out["to"])
	assert.NotEmpty(t, out["message_id"])
}

func TestCustom_DispatchesToRegisteredHandler(t *testing.T) {
	c := NewCustom()
	c.Register("noop", func(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
		return domain.Bag{"ran": true}, nil
	})
	out, err := c.Execute(context.Background(), domain.Bag{"handler": "noop"})
	require.NoError(t, err)
	assert.Equal(t, true, out["ran"])
}

func TestCustom_UnknownHandlerIsConfigurationError(t *testing.T) {
	c := NewCustom()
	_, err := c.Execute(context.Background(), domain.Bag{"handler": "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigurationError)
}

func TestRegistry_ExecuteAppliesDeadline(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.JobTypeCustom, customFunc(func(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	_, err := r.Execute(context.Background(), domain.JobTypeCustom, domain.Bag{}, time.Now().Add(10*time.Millisecond))
	require.Error(t, err)
}

type customFunc func(ctx context.Context, payload domain.Bag) (domain.Bag, error)

func (f customFunc) Execute(ctx context.Context, payload domain.Bag) (domain.Bag, error) {
	return f(ctx, payload)
}
