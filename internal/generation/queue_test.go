package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// fakeQueue replays scripted status documents, one per Status call.
type fakeQueue struct {
	mu sync.Mutex

	requestID string
	submitErr error
	statuses  []string
	statusErr error
	result    string
	resultErr error
	cancelErr error

	submitted    []Input
	submitModels []string
	statusCalls  int
	resultCalls  int
	cancelCalls  int
	onStatus     func(call int)
}

func (q *fakeQueue) Submit(ctx context.Context, model string, input any) (string, json.RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitModels = append(q.submitModels, model)
	if in, ok := input.(Input); ok {
		q.submitted = append(q.submitted, in)
	}
	if q.submitErr != nil {
		return "", nil, q.submitErr
	}
	id := q.requestID
	if id == "" {
		id = "req-1"
	}
	return id, json.RawMessage(`{"request_id":"` + id + `"}`), nil
}

func (q *fakeQueue) Status(ctx context.Context, model, requestID string) (json.RawMessage, error) {
	q.mu.Lock()
	q.statusCalls++
	call := q.statusCalls
	hook := q.onStatus
	q.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if q.statusErr != nil {
		return nil, q.statusErr
	}
	if len(q.statuses) == 0 {
		return nil, errors.New("no scripted status")
	}
	idx := call - 1
	if idx >= len(q.statuses) {
		idx = len(q.statuses) - 1
	}
	return json.RawMessage(q.statuses[idx]), nil
}

func (q *fakeQueue) Result(ctx context.Context, model, requestID string) (json.RawMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resultCalls++
	if q.resultErr != nil {
		return nil, q.resultErr
	}
	return json.RawMessage(q.result), nil
}

func (q *fakeQueue) Cancel(ctx context.Context, model, requestID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelCalls++
	return q.cancelErr
}

func pending(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = `{"state":"pending"}`
	}
	return out
}

// recordingAfter fires immediately and records every requested delay.
type recordingAfter struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingAfter) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}
