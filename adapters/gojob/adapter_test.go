package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-rendezvous/core"
)

func TestNackRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	first := policy.NormalizeAttempt(queue.NackOptions{Delay: 30 * time.Second, Requeue: true, Reason: " transient "}, 1)
	if first.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", first.Delay)
	}
	if !first.Requeue || first.Reason != "transient" {
		t.Fatalf("expected requeue before max attempts, got %+v", first)
	}

	last := policy.NormalizeAttempt(queue.NackOptions{Delay: time.Second, Requeue: true}, 3)
	if last.Requeue || !last.DeadLetter {
		t.Fatalf("expected dead letter once max attempts is reached, got %+v", last)
	}

	if got := (RetryPolicy{}).NormalizeAttempt(queue.NackOptions{Delay: -time.Second}, 9); !got.Requeue || got.Delay != 0 {
		t.Fatalf("expected unbounded policy to requeue without negative delay, got %+v", got)
	}
}

func TestEnqueueHandler_QueuesBoundArguments(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	d := newDispatcher(t)
	descriptor := core.NewHandler("report.generate").
		Params(core.AutoParam[string]("report_id"), core.AutoParam[string](ParamIdempotencyKey).Optional()).
		Invoke(EnqueueHandler(enqueuer, "reports.generate", WithDedupPolicy(job.DeduplicationPolicy("drop")))).
		Build()
	if err := d.RegisterHandler(descriptor); err != nil {
		t.Fatalf("register: %v", err)
	}

	rc, err := d.Dispatch(context.Background(), core.Inbound{
		Scheme: core.SchemeHTTP,
		Intent: "report.generate",
		Payload: core.Payload{Query: map[string]string{
			"report_id":       "r-9",
			"idempotency_key": "idem-9",
		}},
	})
	if err != nil || !rc.Outcome().Succeeded() {
		t.Fatalf("dispatch: %v %v", err, rc.Outcome().Err)
	}
	if enqueuer.last == nil {
		t.Fatalf("expected message to be enqueued")
	}
	if enqueuer.last.JobID != "reports.generate" || enqueuer.last.Parameters["report_id"] != "r-9" {
		t.Fatalf("unexpected job message: %+v", enqueuer.last)
	}
	if enqueuer.last.IdempotencyKey != "idem-9" || enqueuer.last.DedupPolicy != "drop" {
		t.Fatalf("expected idempotency and dedup policy, got %+v", enqueuer.last)
	}
	result := rc.Result().(map[string]any)
	if result["enqueued"] != true {
		t.Fatalf("unexpected handler result: %v", result)
	}
}

func TestEnqueueHandler_SurfacesQueueErrors(t *testing.T) {
	invoke := EnqueueHandler(&stubQueueEnqueuer{err: errors.New("queue full")}, "x")
	if _, err := invoke(context.Background(), nil); err == nil {
		t.Fatalf("expected enqueue failure")
	}
	if _, err := EnqueueHandler(nil, "x")(context.Background(), nil); err == nil {
		t.Fatalf("expected missing enqueuer error")
	}
}

func TestConsumer_ReplaysJobsAsIntents(t *testing.T) {
	d := newDispatcher(t)
	var generated []string
	calls := 0
	mustRegister(t, d, core.NewHandler("reports.generate").
		Params(core.AutoParam[string]("report_id")).
		Invoke(core.Handle1(func(_ context.Context, id string) (string, error) {
			generated = append(generated, id)
			return id, nil
		})).
		Build())
	mustRegister(t, d, core.NewHandler("reports.flaky").
		Invoke(core.Handle0(func(context.Context) (any, error) {
			calls++
			return nil, errors.New("upstream timeout")
		})).
		Build())

	metrics := &countingRecorder{}
	policy := RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true}
	cases := []struct {
		name       string
		delivery   *stubQueueDelivery
		acked      bool
		requeue    bool
		deadLetter bool
	}{
		{"success", &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "reports.generate", Parameters: map[string]any{"report_id": "r-1"}}}, true, false, false},
		{"missing parameter", &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "reports.generate"}}, false, false, true},
		{"unknown job", &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "reports.unknown"}}, false, false, true},
		{"retry", &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "reports.flaky"}, attempt: 1}, false, true, false},
		{"exhausted", &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "reports.flaky"}, attempt: 2}, false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			consumer := NewConsumer(d, &stubQueueDequeuer{delivery: tc.delivery}, policy).WithHook(NewMetricsHook(metrics))
			if err := consumer.ProcessNext(context.Background()); err != nil {
				t.Fatalf("process: %v", err)
			}
			if tc.delivery.acked != tc.acked {
				t.Fatalf("expected acked=%v", tc.acked)
			}
			if tc.acked {
				return
			}
			if !tc.delivery.nacked || tc.delivery.nackOpts.Requeue != tc.requeue || tc.delivery.nackOpts.DeadLetter != tc.deadLetter {
				t.Fatalf("unexpected nack: %+v", tc.delivery.nackOpts)
			}
		})
	}
	if len(generated) != 1 || generated[0] != "r-1" {
		t.Fatalf("expected one generated report, got %v", generated)
	}
	if calls != 2 {
		t.Fatalf("expected flaky handler to run twice, got %d", calls)
	}
	if metrics.count("reports.flaky", "retry") != 1 || metrics.count("reports.flaky", "failure") != 1 {
		t.Fatalf("unexpected flaky metrics: %v", metrics.counts)
	}
	if metrics.count("reports.generate", "success") != 1 || metrics.count("reports.generate", "start") != 2 {
		t.Fatalf("unexpected generate metrics: %v", metrics.counts)
	}
}

func TestMetricsHook_FallsBackToDeliveryMessage(t *testing.T) {
	metrics := &countingRecorder{}
	hook := NewMetricsHook(metrics)
	hook.OnFailure(context.Background(), worker.Event{
		Delivery: &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "reports.generate"}},
	})
	hook.OnStart(context.Background(), worker.Event{})
	if metrics.count("reports.generate", "failure") != 1 || metrics.count("unknown", "start") != 1 {
		t.Fatalf("unexpected counts: %v", metrics.counts)
	}
}

func newDispatcher(t *testing.T) *core.Dispatcher {
	t.Helper()
	d, err := core.NewDispatcher(core.Config{}, core.WithExecutor(core.InlineExecutor{}))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func mustRegister(t *testing.T, d *core.Dispatcher, descriptor core.HandlerDescriptor) {
	t.Helper()
	if err := d.RegisterHandler(descriptor); err != nil {
		t.Fatalf("register %s: %v", descriptor.Intent, err)
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
	err  error
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if s.err != nil {
		return s.err
	}
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	attempt  int
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage { return s.msg }

func (s *stubQueueDelivery) Attempt() int { return s.attempt }

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (r *countingRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int64{}
	}
	r.counts[name+"|"+tags["job_id"]+"|"+tags["event"]] += value
}

func (r *countingRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (r *countingRecorder) count(jobID, event string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[MetricJobEvents+"|"+jobID+"|"+event]
}
