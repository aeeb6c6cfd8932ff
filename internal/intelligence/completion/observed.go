package completion

import (
	"context"
	"time"
)

// Observer receives one event per completion call.
type Observer interface {
	ObserveCompletion(operation, model string, inputTokens, outputTokens int64, elapsed time.Duration, err error)
}

type observedService struct {
	next      Service
	operation string
	observer  Observer
}

// Observed wraps svc so that every call is reported to obs under operation.
// A nil obs returns svc unchanged.
func Observed(svc Service, operation string, obs Observer) Service {
	if obs == nil {
		return svc
	}
	return &observedService{next: svc, operation: operation, observer: obs}
}

func (s *observedService) Complete(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := s.next.Complete(ctx, req)
	var model string
	var usage Usage
	if resp != nil {
		model = resp.Model
		usage = resp.Usage
	}
	s.observer.ObserveCompletion(s.operation, model, usage.InputTokens, usage.OutputTokens, time.Since(start), err)
	return resp, err
}
