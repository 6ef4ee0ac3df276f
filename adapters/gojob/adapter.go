package gojob

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-rendezvous/core"
)

// SchemeJob is the scheme of intents replayed from a job queue.
const SchemeJob = "job"

const (
	MetricJobEvents = "rendezvous.job.events"
	// ParamIdempotencyKey, when bound, becomes the job idempotency key.
	ParamIdempotencyKey = "idempotency_key"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// EnqueueOption adjusts the execution message built by EnqueueHandler.
type EnqueueOption func(*job.ExecutionMessage)

func WithScriptPath(path string) EnqueueOption {
	return func(msg *job.ExecutionMessage) { msg.ScriptPath = strings.TrimSpace(path) }
}

func WithDedupPolicy(policy job.DeduplicationPolicy) EnqueueOption {
	return func(msg *job.ExecutionMessage) { msg.DedupPolicy = policy }
}

// EnqueueHandler turns an intent into a fire-and-forget job: the bound
// arguments become the job parameters and the handler returns as soon as
// the message is queued.
func EnqueueHandler(enqueuer queue.Enqueuer, jobID string, opts ...EnqueueOption) core.Invocable {
	jobID = strings.TrimSpace(jobID)
	return func(ctx context.Context, args core.Arguments) (any, error) {
		if enqueuer == nil {
			return nil, fmt.Errorf("gojob: enqueuer is not configured")
		}
		if jobID == "" {
			return nil, fmt.Errorf("gojob: job id is required")
		}
		msg := ExecutionMessageFor(jobID, args, opts...)
		if err := enqueuer.Enqueue(ctx, msg); err != nil {
			return nil, fmt.Errorf("gojob: enqueue %s: %w", jobID, err)
		}
		return map[string]any{
			"job_id":          msg.JobID,
			"idempotency_key": msg.IdempotencyKey,
			"enqueued":        true,
		}, nil
	}
}

func ExecutionMessageFor(jobID string, args core.Arguments, opts ...EnqueueOption) *job.ExecutionMessage {
	params := args.Map()
	msg := &job.ExecutionMessage{
		JobID:      jobID,
		ScriptPath: jobID,
		Parameters: params,
	}
	if key, ok := params[ParamIdempotencyKey].(string); ok {
		msg.IdempotencyKey = strings.TrimSpace(key)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(msg)
		}
	}
	return msg
}

// attemptCounter is implemented by deliveries that know their attempt.
type attemptCounter interface {
	Attempt() int
}

// Consumer replays dequeued jobs as intents on the "job" scheme. The job id
// is the intent and the job parameters are the request values.
type Consumer struct {
	dispatcher *core.Dispatcher
	dequeuer   queue.Dequeuer
	policy     RetryPolicy
	hook       worker.Hook
}

func NewConsumer(dispatcher *core.Dispatcher, dequeuer queue.Dequeuer, policy RetryPolicy) *Consumer {
	return &Consumer{dispatcher: dispatcher, dequeuer: dequeuer, policy: policy}
}

// WithHook reports job lifecycle events to hook.
func (c *Consumer) WithHook(hook worker.Hook) *Consumer {
	c.hook = hook
	return c
}

// ProcessNext dequeues one delivery and dispatches it. Successful dispatches
// are acked. Not-found and validation failures are dead-lettered; other
// failures are retried within the policy.
func (c *Consumer) ProcessNext(ctx context.Context) error {
	if c == nil || c.dispatcher == nil || c.dequeuer == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	return c.Process(ctx, delivery)
}

func (c *Consumer) Process(ctx context.Context, delivery queue.Delivery) error {
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "empty message"})
	}
	attempt := 1
	if counter, ok := delivery.(attemptCounter); ok && counter.Attempt() > 0 {
		attempt = counter.Attempt()
	}
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: time.Now().UTC()}
	c.emit(ctx, "start", event)

	rc, err := c.dispatcher.Dispatch(ctx, core.Inbound{
		Scheme: SchemeJob,
		Intent: msg.JobID,
		Payload: core.Payload{
			Root:    maps.Clone(msg.Parameters),
			TraceID: msg.IdempotencyKey,
			Metadata: map[string]any{
				"job_id":      msg.JobID,
				"script_path": msg.ScriptPath,
				"attempt":     attempt,
			},
		},
		Raw: msg,
	})
	event.Duration = time.Since(event.StartedAt)
	if err == nil && rc.Outcome().Succeeded() {
		c.emit(ctx, "success", event)
		return delivery.Ack(ctx)
	}
	if err == nil {
		err = rc.Outcome().Err
	}
	event.Err = err

	opts := queue.NackOptions{Requeue: true, Reason: err.Error()}
	switch core.KindOf(err) {
	case core.KindNotFound, core.KindValidation:
		opts = queue.NackOptions{DeadLetter: true, Reason: err.Error()}
	}
	opts = c.policy.NormalizeAttempt(opts, attempt)
	if opts.Requeue {
		event.Delay = opts.Delay
		c.emit(ctx, "retry", event)
	} else {
		c.emit(ctx, "failure", event)
	}
	if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
		return errors.Join(err, nackErr)
	}
	return nil
}

func (c *Consumer) emit(ctx context.Context, stage string, event worker.Event) {
	if c.hook == nil {
		return
	}
	switch stage {
	case "start":
		c.hook.OnStart(ctx, event)
	case "success":
		c.hook.OnSuccess(ctx, event)
	case "retry":
		c.hook.OnRetry(ctx, event)
	default:
		c.hook.OnFailure(ctx, event)
	}
}

// MetricsHook counts worker lifecycle events by job id.
type MetricsHook struct {
	recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) OnStart(ctx context.Context, event worker.Event)   { h.record(ctx, "start", event) }
func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) { h.record(ctx, "success", event) }
func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) { h.record(ctx, "failure", event) }
func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event)   { h.record(ctx, "retry", event) }

func (h *MetricsHook) record(ctx context.Context, stage string, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	jobID := "unknown"
	if message != nil && message.JobID != "" {
		jobID = message.JobID
	}
	h.recorder.IncCounter(ctx, MetricJobEvents, 1, map[string]string{"job_id": jobID, "event": stage})
}

var (
	_ worker.Hook = (*MetricsHook)(nil)
)
