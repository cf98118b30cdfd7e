// Package gcpbatch is HAL's reference Provider: a classical backend that
// submits containerized tasks to Google Cloud Batch. It is grounded on the
// teacher's internal/batch/gcp client, generalized from "submit one
// pre-built JobConfig" to "submit N opaque tasks sharing a device and shot
// count", with execute_batch mapping one Cloud Batch job to N tasks via
// per-task-index environments instead of one job per task.
package gcpbatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	batch "cloud.google.com/go/batch/apiv1"
	"cloud.google.com/go/batch/apiv1/batchpb"
	run "cloud.google.com/go/run/apiv2"
	"cloud.google.com/go/run/apiv2/runpb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/nexar/hal/internal/job"
	"github.com/nexar/hal/internal/provider"
)

const deviceName = "gcp-batch"

func init() {
	provider.Register("gcp-batch", New)
}

// Provider implements provider.Provider against real Cloud Batch (and,
// for availability signal, Cloud Run Jobs execution counts).
type Provider struct {
	batchClient     *batch.Client
	runClient       *run.JobsClient
	projectID       string
	region          string
	queueThreshold  int
	runJobName      string
	imageURI        string
}

// New constructs the GCP Batch provider. Registered against the shared
// provider registry from an init() function, matching the teacher's
// deferred-registration pattern.
func New(ctx context.Context, cfg provider.Config) (provider.Provider, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("gcpbatch: project_id is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("gcpbatch: region is required")
	}

	batchClient, err := batch.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcpbatch: create batch client: %w", err)
	}

	runClient, err := run.NewJobsClient(ctx)
	if err != nil {
		batchClient.Close()
		return nil, fmt.Errorf("gcpbatch: create run client: %w", err)
	}

	threshold := 5
	if v := cfg.ProviderOptions["queue_threshold"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			threshold = n
		}
	}

	return &Provider{
		batchClient:    batchClient,
		runClient:      runClient,
		projectID:      cfg.ProjectID,
		region:         cfg.Region,
		queueThreshold: threshold,
		runJobName:     cfg.ProviderOptions["run_job_name"],
		imageURI:       cfg.ProviderOptions["image_uri"],
	}, nil
}

func (p *Provider) Name() string { return "gcp-batch" }

// Close releases the underlying GCP clients.
func (p *Provider) Close() error {
	err1 := p.batchClient.Close()
	err2 := p.runClient.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (p *Provider) ListDevices(ctx context.Context) ([]provider.Device, error) {
	avail, err := p.CheckAvailability(ctx, deviceName)
	if err != nil {
		return nil, err
	}
	return []provider.Device{{
		Name:        deviceName,
		Operational: avail.IsOperational,
		PendingJobs: avail.PendingJobs,
		Simulator:   false,
	}}, nil
}

// CheckAvailability combines Cloud Batch's own active-job count with Cloud
// Run Jobs execution counts: a Cloud Batch deployment of this provider may
// share project quota with Cloud Run Jobs, so both surfaces' load feeds the
// single pending_jobs signal gating admission.
func (p *Provider) CheckAvailability(ctx context.Context, device string) (job.Availability, error) {
	pending, err := p.countActiveBatchJobs(ctx)
	if err != nil {
		return job.Availability{}, fmt.Errorf("gcpbatch: check availability: %w", err)
	}
	if p.runJobName != "" {
		runPending, err := p.countActiveRunExecutions(ctx)
		if err != nil {
			return job.Availability{}, fmt.Errorf("gcpbatch: check run executions: %w", err)
		}
		pending += runPending
	}
	return job.Availability{
		DeviceName:     device,
		IsOperational:  true,
		PendingJobs:    pending,
		QueueThreshold: p.queueThreshold,
	}, nil
}

func (p *Provider) countActiveBatchJobs(ctx context.Context) (int, error) {
	parent := fmt.Sprintf("projects/%s/locations/%s", p.projectID, p.region)
	it := p.batchClient.ListJobs(ctx, &batchpb.ListJobsRequest{Parent: parent})
	count := 0
	for {
		j, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		switch j.GetStatus().GetState() {
		case batchpb.JobStatus_QUEUED, batchpb.JobStatus_SCHEDULED, batchpb.JobStatus_RUNNING:
			count++
		}
	}
	return count, nil
}

func (p *Provider) countActiveRunExecutions(ctx context.Context) (int, error) {
	it := p.runClient.ListExecutions(ctx, &runpb.ListExecutionsRequest{Parent: p.runJobName})
	count := 0
	for {
		e, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		if e.GetRunningCount() > 0 {
			count++
		}
	}
	return count, nil
}

func (p *Provider) ExecuteSingle(ctx context.Context, task any, device string, shots int) (string, error) {
	ids, err := p.ExecuteBatch(ctx, []any{task}, device, shots)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// ExecuteBatch submits one Cloud Batch job whose task group runs len(tasks)
// tasks, each receiving its payload through a per-index task environment.
// For more than one task the returned provider job IDs use the composite
// "base:i" scheme spec §4.2 explicitly allows, so GetStatus/GetResult can
// split a batch member back out of the underlying Cloud Batch job; a
// single task gets the plain Cloud Batch job name.
func (p *Provider) ExecuteBatch(ctx context.Context, tasks []any, device string, shots int) ([]string, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("gcpbatch: execute_batch requires at least one task")
	}

	res, machineType, spotEligible := resolveResources(shots)
	providerJobID := generateProviderJobID(fmt.Sprintf("%d-%d", time.Now().UnixNano(), len(tasks)))

	taskEnvs := make([]*batchpb.Environment, len(tasks))
	for i, t := range tasks {
		payload, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("gcpbatch: encode task %d: %w", i, err)
		}
		taskEnvs[i] = &batchpb.Environment{
			Variables: map[string]string{
				"HAL_TASK_PAYLOAD": string(payload),
				"HAL_DEVICE":       device,
				"HAL_SHOTS":        strconv.Itoa(shots),
			},
		}
	}

	taskSpec := &batchpb.TaskSpec{
		Runnables: []*batchpb.Runnable{{
			Executable: &batchpb.Runnable_Container_{
				Container: &batchpb.Runnable_Container{ImageUri: p.imageURI},
			},
		}},
		ComputeResource: &batchpb.ComputeResource{
			CpuMilli:  res.CPUMillis,
			MemoryMib: res.MemoryMiB,
		},
	}
	if res.MaxRunDurationSeconds > 0 {
		taskSpec.MaxRunDuration = durationpb.New(time.Duration(res.MaxRunDurationSeconds) * time.Second)
	}

	batchJob := &batchpb.Job{
		TaskGroups: []*batchpb.TaskGroup{{
			TaskSpec:       taskSpec,
			TaskCount:      int64(len(tasks)),
			TaskEnvironments: taskEnvs,
		}},
		AllocationPolicy: &batchpb.AllocationPolicy{
			Instances: []*batchpb.AllocationPolicy_InstancePolicyOrTemplate{{
				Policy: &batchpb.AllocationPolicy_InstancePolicy{
					MachineType: machineType,
					ProvisioningModel: func() batchpb.AllocationPolicy_ProvisioningModel {
						if spotEligible {
							return batchpb.AllocationPolicy_SPOT
						}
						return batchpb.AllocationPolicy_STANDARD
					}(),
				},
			}},
		},
		LogsPolicy: &batchpb.LogsPolicy{Destination: batchpb.LogsPolicy_CLOUD_LOGGING},
	}

	parent := fmt.Sprintf("projects/%s/locations/%s", p.projectID, p.region)
	created, err := p.batchClient.CreateJob(ctx, &batchpb.CreateJobRequest{
		Parent: parent,
		JobId:  providerJobID,
		Job:    batchJob,
	})
	if err != nil {
		return nil, provider.NewPermanentError("gcp-batch", fmt.Errorf("create job: %w", err))
	}

	ids := make([]string, len(tasks))
	if len(tasks) == 1 {
		ids[0] = created.Name
	} else {
		for i := range tasks {
			ids[i] = fmt.Sprintf("%s:%d", created.Name, i)
		}
	}
	return ids, nil
}

// splitComposite separates a "base:i" provider job ID into its Cloud Batch
// job name and task index. A plain job name (no batch member) returns
// index -1.
func splitComposite(providerJobID string) (base string, index int) {
	i := strings.LastIndex(providerJobID, ":")
	if i < 0 {
		return providerJobID, -1
	}
	idx, err := strconv.Atoi(providerJobID[i+1:])
	if err != nil {
		return providerJobID, -1
	}
	return providerJobID[:i], idx
}

func (p *Provider) GetStatus(ctx context.Context, providerJobID string) (job.Status, error) {
	base, _ := splitComposite(providerJobID)
	j, err := p.batchClient.GetJob(ctx, &batchpb.GetJobRequest{Name: base})
	if err != nil {
		return job.StatusUnknown, provider.NewTransientError("gcp-batch", fmt.Errorf("get job: %w", err))
	}
	return mapBatchStatus(j.GetStatus().GetState()), nil
}

func (p *Provider) GetResult(ctx context.Context, providerJobID string) (map[string]any, error) {
	base, index := splitComposite(providerJobID)
	j, err := p.batchClient.GetJob(ctx, &batchpb.GetJobRequest{Name: base})
	if err != nil {
		return nil, provider.NewTransientError("gcp-batch", fmt.Errorf("get job: %w", err))
	}
	result := map[string]any{
		"job_name": j.GetName(),
		"state":    j.GetStatus().GetState().String(),
	}
	if index >= 0 {
		result["task_index"] = index
	}
	return result, nil
}

func (p *Provider) CancelJob(ctx context.Context, providerJobID string) error {
	base, _ := splitComposite(providerJobID)
	op, err := p.batchClient.DeleteJob(ctx, &batchpb.DeleteJobRequest{Name: base})
	if err != nil {
		return fmt.Errorf("gcpbatch: start delete: %w", err)
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("gcpbatch: delete operation: %w", err)
	}
	return nil
}

func mapBatchStatus(state batchpb.JobStatus_State) job.Status {
	switch state {
	case batchpb.JobStatus_QUEUED:
		return job.StatusQueued
	case batchpb.JobStatus_SCHEDULED:
		return job.StatusSubmitted
	case batchpb.JobStatus_RUNNING:
		return job.StatusSubmitted
	case batchpb.JobStatus_SUCCEEDED:
		return job.StatusCompleted
	case batchpb.JobStatus_FAILED:
		return job.StatusFailed
	case batchpb.JobStatus_DELETION_IN_PROGRESS:
		return job.StatusCancelled
	default:
		return job.StatusUnknown
	}
}
