package comms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pizza-flow-service/internal/models"
)

func reportExec() *models.TaskExecution {
	now := time.Now()
	return &models.TaskExecution{
		UUID:      "task-1",
		Name:      "make_dough",
		Region:    "eu-west-3",
		Status:    models.TaskRunning,
		StartedAt: &now,
	}
}

func newTestNotifier(t *testing.T, serverURL string) *HTTPNotifier {
	n, err := NewHTTPNotifier(serverURL, "secret-token")
	if err != nil {
		t.Fatalf("Failed to create notifier: %v", err)
	}
	n.retryInterval = 10 * time.Millisecond
	return n
}

func TestSendDeliversReport(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/worker/task/task-1", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		var exec models.TaskExecution
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&exec))
		assert.Equal(t, models.TaskRunning, exec.Status)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNotifier(t, srv.URL)
	assert.NoError(t, n.Send(context.Background(), reportExec()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestSendMapsServerVerdicts(t *testing.T) {
	status := http.StatusConflict
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	n := newTestNotifier(t, srv.URL)
	ctx := context.Background()

	assert.ErrorIs(t, n.Send(ctx, reportExec()), ErrAlreadyRunning)

	status = http.StatusBadRequest
	assert.ErrorIs(t, n.Send(ctx, reportExec()), ErrOperationNotFound)

	status = http.StatusInternalServerError
	err := n.Send(ctx, reportExec())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.NotErrorIs(t, err, ErrOperationNotFound)
}

func TestNotifyStatusRetriesUntilDelivered(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newTestNotifier(t, srv.URL)
	assert.NoError(t, n.NotifyStatus(context.Background(), reportExec()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestNotifyStatusReturnsVerdictsWithoutRetry(t *testing.T) {
	var requests int32
	status := http.StatusConflict
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	n := newTestNotifier(t, srv.URL)
	ctx := context.Background()

	// A rejection is an answer, not a delivery failure: one attempt only.
	assert.ErrorIs(t, n.NotifyStatus(ctx, reportExec()), ErrAlreadyRunning)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	status = http.StatusBadRequest
	assert.ErrorIs(t, n.NotifyStatus(ctx, reportExec()), ErrOperationNotFound)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestNotifyStatusStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := newTestNotifier(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.NotifyStatus(ctx, reportExec()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("NotifyStatus did not stop after context cancellation")
	}
}
