package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"imageapi/internal/domain"
	"imageapi/internal/infra"
)

const defaultCancelTimeout = 5 * time.Second

// Queue is the asynchronous job API of an image provider.
type Queue interface {
	Submit(ctx context.Context, model string, input any) (string, json.RawMessage, error)
	Status(ctx context.Context, model, requestID string) (json.RawMessage, error)
	Result(ctx context.Context, model, requestID string) (json.RawMessage, error)
	Cancel(ctx context.Context, model, requestID string) error
}

// Input is the job body sent on submission.
type Input struct {
	Prompt     string `json:"prompt"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	NumOutputs int    `json:"num_outputs"`
}

// Result is the outcome of a successful job. URL is empty when no candidate
// location matched; Raw then holds the document that was searched.
type Result struct {
	RequestID string
	Model     string
	URL       string
	Raw       Payload
	Attempts  int
}

// Options configures a Service.
type Options struct {
	Queue         Queue
	DefaultModel  string
	Policy        Policy
	Extractors    []Extractor
	CancelTimeout time.Duration
	Logger        *infra.Logger
	Metrics       *infra.Metrics
}

// Service submits one job, waits for it and extracts the image URL.
type Service struct {
	queue         Queue
	defaultModel  string
	poller        *Poller
	extractors    []Extractor
	cancelTimeout time.Duration
	logger        *infra.Logger
	metrics       *infra.Metrics
	now           func() time.Time
}

// NewService validates opts and fills defaults.
func NewService(opts Options) (*Service, error) {
	if opts.Queue == nil {
		return nil, errors.New("generation: queue is required")
	}
	extractors := opts.Extractors
	if len(extractors) == 0 {
		extractors = DefaultExtractors
	}
	cancelTimeout := opts.CancelTimeout
	if cancelTimeout <= 0 {
		cancelTimeout = defaultCancelTimeout
	}
	logger := infra.LoggerOrDiscard(opts.Logger)
	return &Service{
		queue:         opts.Queue,
		defaultModel:  opts.DefaultModel,
		poller:        NewPoller(opts.Policy, logger),
		extractors:    extractors,
		cancelTimeout: cancelTimeout,
		logger:        logger,
		metrics:       opts.Metrics,
		now:           time.Now,
	}, nil
}

// Generate validates req, submits it and blocks until the job is terminal,
// the poll budget is spent or ctx is cancelled. A cancelled wait asks the
// provider to drop the job.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	req.Normalize(s.defaultModel)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	started := s.now()

	requestID, _, err := s.queue.Submit(ctx, req.Model, Input{
		Prompt:     req.Prompt,
		Width:      req.Width,
		Height:     req.Height,
		NumOutputs: domain.OutputCount,
	})
	if err != nil {
		s.observe(req.Model, infra.OutcomeError, 0, started)
		return nil, fmt.Errorf("submit generation: %w", err)
	}
	log := s.logger.With().Str("request_id", requestID).Str("model", req.Model).Logger()
	log.Info().Int("width", req.Width).Int("height", req.Height).Msg("generation: job submitted")

	status, attempts, err := s.poller.Wait(ctx, requestID, func(ctx context.Context) (Payload, error) {
		raw, err := s.queue.Status(ctx, req.Model, requestID)
		return Payload(raw), err
	})
	if err != nil {
		abandoned := ctx.Err() != nil
		s.observe(req.Model, outcomeFor(err, abandoned), attempts, started)
		if abandoned {
			s.cancel(ctx, req.Model, requestID)
		}
		log.Warn().Err(err).Int("attempts", attempts).Msg("generation: job did not succeed")
		return nil, err
	}

	result := &Result{RequestID: requestID, Model: req.Model, Raw: status, Attempts: attempts}
	if url, ok := ExtractURL(status, s.extractors); ok {
		result.URL = url
	} else if err := s.fillFromResult(ctx, result); err != nil {
		s.observe(req.Model, outcomeFor(err, ctx.Err() != nil), attempts, started)
		log.Warn().Err(err).Int("attempts", attempts).Msg("generation: fetch result failed")
		return nil, err
	}

	outcome := infra.OutcomeSucceeded
	if result.URL == "" {
		outcome = infra.OutcomeNoURL
	}
	s.observe(req.Model, outcome, attempts, started)
	log.Info().
		Int("attempts", attempts).
		Str("url", result.URL).
		Dur("elapsed", s.now().Sub(started)).
		Msg("generation: job completed")
	return result, nil
}

// fillFromResult fetches the output document when the status carried none.
// Providers report some failures only on this route, so a failed fetch fails
// the generation.
func (s *Service) fillFromResult(ctx context.Context, result *Result) error {
	raw, err := s.queue.Result(ctx, result.Model, result.RequestID)
	if err != nil {
		return fmt.Errorf("fetch result of %s: %w", result.RequestID, err)
	}
	result.Raw = Payload(raw)
	if url, ok := ExtractURL(result.Raw, s.extractors); ok {
		result.URL = url
	}
	return nil
}

func (s *Service) cancel(ctx context.Context, model, requestID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cancelTimeout)
	defer cancel()
	if err := s.queue.Cancel(cancelCtx, model, requestID); err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("generation: cancel failed")
		return
	}
	s.logger.Info().Str("request_id", requestID).Msg("generation: job cancelled")
}

func (s *Service) observe(model, outcome string, attempts int, started time.Time) {
	s.metrics.ObserveGeneration(model, outcome, attempts, s.now().Sub(started))
}

// outcomeFor classifies err. Only a caller that went away counts as cancelled;
// a transport deadline with the caller still waiting is an error.
func outcomeFor(err error, abandoned bool) string {
	var failed *JobFailedError
	switch {
	case errors.As(err, &failed):
		return infra.OutcomeFailed
	case errors.Is(err, ErrTimeout):
		return infra.OutcomeTimeout
	case abandoned:
		return infra.OutcomeCancelled
	default:
		return infra.OutcomeError
	}
}
