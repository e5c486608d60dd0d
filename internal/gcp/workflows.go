package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
)

// WorkflowTrigger starts executions of one Cloud Workflow.
type WorkflowTrigger struct {
	ProjectID  string
	Location   string
	WorkflowID string
	client     *executions.Client
}

// NewWorkflowTrigger creates an executions client for the given workflow.
func NewWorkflowTrigger(ctx context.Context, projectID, location, workflowID string) (*WorkflowTrigger, error) {
	if projectID == "" || workflowID == "" {
		return nil, fmt.Errorf("projectID and workflowID must be provided to trigger a workflow")
	}
	client, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowTrigger{ProjectID: projectID, Location: location, WorkflowID: workflowID, client: client}, nil
}

// Parent is the workflow resource name executions are created under.
func (w *WorkflowTrigger) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", w.ProjectID, w.Location, w.WorkflowID)
}

// Trigger starts an execution with payload marshalled as its argument and returns the
// execution name.
func (w *WorkflowTrigger) Trigger(ctx context.Context, payload any) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: w.Parent(),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := w.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

// Close releases the executions client.
func (w *WorkflowTrigger) Close() error {
	return w.client.Close()
}
