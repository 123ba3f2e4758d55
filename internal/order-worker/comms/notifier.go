package comms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"pizza-flow-service/internal/models"
)

var (
	// ErrAlreadyRunning means the server rejected a claim: the task is owned
	// by another worker.
	ErrAlreadyRunning = errors.New("task already running")
	// ErrOperationNotFound means the server no longer knows the reported
	// task or its operation.
	ErrOperationNotFound = errors.New("operation not found")
)

// RetryInterval is the fixed backoff between delivery attempts.
// Intentionally simple rather than exponential.
const RetryInterval = 30 * time.Second

// HTTPNotifier reports TaskExecution state to the server.
type HTTPNotifier struct {
	serverURL string
	authToken string
	cli       *client.Client

	// retryInterval is overridable in tests.
	retryInterval time.Duration
}

func NewHTTPNotifier(serverURL, authToken string) (*HTTPNotifier, error) {
	cli, err := client.NewClient()
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	return &HTTPNotifier{
		serverURL:     serverURL,
		authToken:     authToken,
		cli:           cli,
		retryInterval: RetryInterval,
	}, nil
}

// Send performs a single report attempt and returns the server's verdict.
func (n *HTTPNotifier) Send(ctx context.Context, exec *models.TaskExecution) error {
	body, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution %s: %w", exec.UUID, err)
	}

	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()
	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(n.serverURL + "/worker/task/" + exec.UUID)
	req.SetHeader("Content-Type", "application/json")
	req.SetHeader("Authorization", "Bearer "+n.authToken)
	req.SetBody(body)

	if err := n.cli.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("send report for task %s: %w", exec.UUID, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("task %s: %w", exec.UUID, ErrAlreadyRunning)
	case http.StatusBadRequest:
		return fmt.Errorf("task %s: %w", exec.UUID, ErrOperationNotFound)
	default:
		return fmt.Errorf("send report for task %s: unexpected status %d", exec.UUID, resp.StatusCode())
	}
}

// NotifyStatus delivers a report, retrying transport failures indefinitely
// on a fixed backoff. A server-side rejection is a verdict, not a transport
// failure, and is returned immediately.
func (n *HTTPNotifier) NotifyStatus(ctx context.Context, exec *models.TaskExecution) error {
	for {
		err := n.Send(ctx, exec)
		if err == nil {
			log.Printf("Task %s acknowledged by server", exec.UUID)
			return nil
		}
		if errors.Is(err, ErrAlreadyRunning) || errors.Is(err, ErrOperationNotFound) {
			return err
		}
		log.Printf("Error notifying task %s: %v. Will retry in %s", exec.UUID, err, n.retryInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryInterval):
		}
	}
}
