package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"mesh-agent/internal/common/logger"
	"mesh-agent/internal/models"
)

// TaskType is the Zeebe job type the worker subscribes to. The messaging
// process delivers one inbound chat message per job.
const TaskType = "resolve-message"

var ErrInvalidInput = stderrors.New("RESOLVE_MESSAGE_INVALID_INPUT")

// Input is the job variable payload.
type Input struct {
	Identity string `json:"identity"`
	Message  string `json:"message"`
}

// Output is written back to the process: the reply to send, plus whether the
// automated session ended in a handoff.
type Output struct {
	Response   *models.Response `json:"response"`
	NeedsHuman bool             `json:"needsHuman"`
	Outcome    string           `json:"outcome"`
}

// TurnRecorder is the otel slice of common/observability the worker reports
// job outcomes to. Nil disables recording.
type TurnRecorder interface {
	RecordTurnProcessed(ctx context.Context, outcome string)
	RecordTurnDuration(ctx context.Context, duration time.Duration, outcome string)
}

// Worker adapts the pipeline to a Zeebe job handler.
type Worker struct {
	pipeline *Pipeline
	timeout  time.Duration
	recorder TurnRecorder
	logger   logger.Logger
}

func NewWorker(p *Pipeline, timeout time.Duration, recorder TurnRecorder, log logger.Logger) *Worker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{
		pipeline: p,
		timeout:  timeout,
		recorder: recorder,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (w *Worker) Handle(client worker.JobClient, job entities.Job) {
	turnID := uuid.NewString()
	w.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.Key,
		"processInstanceKey": job.ProcessInstanceKey,
		"turnId":             turnID,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		w.failJob(client, job, fmt.Errorf("%w: %v", ErrInvalidInput, err), 0)
		return
	}
	if input.Identity == "" {
		w.failJob(client, job, fmt.Errorf("%w: missing identity", ErrInvalidInput), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	started := time.Now()
	output, err := w.execute(ctx, &input)
	if err != nil {
		w.record(ctx, "error", time.Since(started))
		// Storage trouble is worth a retry; bad input is not.
		retries := int32(2)
		if stderrors.Is(err, ErrInvalidInput) {
			retries = 0
		}
		w.failJob(client, job, err, retries)
		return
	}
	w.record(ctx, output.Outcome, time.Since(started))

	w.completeJob(client, job, output)
}

func (w *Worker) record(ctx context.Context, outcome string, elapsed time.Duration) {
	if w.recorder == nil {
		return
	}
	w.recorder.RecordTurnProcessed(ctx, outcome)
	w.recorder.RecordTurnDuration(ctx, elapsed, outcome)
}

func (w *Worker) execute(ctx context.Context, input *Input) (*Output, error) {
	result, err := w.pipeline.ResolveMessage(ctx, input.Identity, input.Message)
	if err != nil {
		return nil, err
	}
	return &Output{
		Response:   result.Response,
		NeedsHuman: result.NeedsHuman,
		Outcome:    result.Outcome,
	}, nil
}

func (w *Worker) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		w.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key, "error": err.Error(),
		})
		return
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		w.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key, "error": err.Error(),
		})
	}
}

func (w *Worker) failJob(client worker.JobClient, job entities.Job, err error, retries int32) {
	w.logger.Error("job failed", map[string]interface{}{
		"jobKey": job.Key, "error": err.Error(), "retries": retries,
	})

	_, _ = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(err.Error()).
		Send(context.Background())
}
