package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-worker/tasks"
)

// HTTPRetriever pulls eligible tasks for a region from the server and binds
// them to runners from the registry.
type HTTPRetriever struct {
	serverURL string
	authToken string
	region    string
	registry  *tasks.Registry
	reports   tasks.Reporter
	cli       *client.Client
}

func NewHTTPRetriever(serverURL, authToken, region string, registry *tasks.Registry, reports tasks.Reporter) (*HTTPRetriever, error) {
	cli, err := client.NewClient()
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	return &HTTPRetriever{
		serverURL: serverURL,
		authToken: authToken,
		region:    region,
		registry:  registry,
		reports:   reports,
		cli:       cli,
	}, nil
}

// PullTasks fetches the server's prioritized task list for the region.
func (r *HTTPRetriever) PullTasks(ctx context.Context) ([]*models.TaskExecution, error) {
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()
	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(r.serverURL + "/worker/tasks")
	req.SetHeader("Authorization", "Bearer "+r.authToken)
	req.SetHeader("X-Worker-Region", r.region)

	if err := r.cli.Do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("pull tasks: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("pull tasks: unexpected status %d", resp.StatusCode())
	}
	var payload struct {
		Tasks []*models.TaskExecution `json:"tasks"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decode task list: %w", err)
	}
	return payload.Tasks, nil
}

// GetTasks pulls and binds tasks to their runners; tasks this worker has no
// runner for are skipped.
func (r *HTTPRetriever) GetTasks(ctx context.Context) []*tasks.Execution {
	execs, err := r.PullTasks(ctx)
	if err != nil {
		log.Printf("Error pulling tasks: %v", err)
		return nil
	}
	return BindRunners(execs, r.registry, r.reports)
}

// BindRunners resolves each execution's runner from the registry.
func BindRunners(execs []*models.TaskExecution, registry *tasks.Registry, reports tasks.Reporter) []*tasks.Execution {
	bound := make([]*tasks.Execution, 0, len(execs))
	for _, exec := range execs {
		runner, err := registry.Get(exec.Name)
		if err != nil {
			log.Printf("No task handler for %s (task %s)", exec.Name, exec.UUID)
			continue
		}
		bound = append(bound, tasks.NewExecution(exec, runner, reports))
	}
	return bound
}
