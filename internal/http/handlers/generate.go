package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"imageapi/internal/domain"
	"imageapi/internal/generation"
	"imageapi/internal/middleware"
	"imageapi/internal/providers/fal"
)

const maxRequestBody = 1 << 20

type generateResponse struct {
	OK        bool               `json:"ok"`
	URL       string             `json:"url,omitempty"`
	RequestID string             `json:"requestId,omitempty"`
	Note      string             `json:"note,omitempty"`
	Error     string             `json:"error,omitempty"`
	Raw       generation.Payload `json:"raw,omitempty"`
}

// Generate serves POST /api/generate. It blocks until the provider job is
// terminal, so the response carries the image URL directly.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		a.MethodNotAllowed(w, r)
		return
	}

	req, err := decodeGenerationRequest(w, r)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		key := msgInvalidBody
		if errors.Is(err, domain.ErrInvalidPrompt) {
			key = msgInvalidPrompt
		}
		a.error(w, r, http.StatusBadRequest, key)
		return
	}

	result, err := a.Generator.Generate(r.Context(), req)
	if err != nil {
		a.generationError(w, r, err)
		return
	}

	if result.URL == "" {
		a.json(w, http.StatusOK, generateResponse{
			OK:        true,
			Note:      message(r.Context(), msgNoURL),
			Raw:       result.Raw,
			RequestID: result.RequestID,
		})
		return
	}
	a.json(w, http.StatusOK, generateResponse{OK: true, URL: result.URL, RequestID: result.RequestID})
}

func (a *App) generationError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	a.Logger.Error().
		Err(err).
		Str("request_id", middleware.RequestIDFromContext(ctx)).
		Msg("generation error")

	var (
		failed *generation.JobFailedError
		apiErr *fal.APIError
	)
	switch {
	case errors.As(err, &failed):
		a.json(w, http.StatusInternalServerError, generateResponse{
			Error:     message(ctx, msgJobFailed),
			Raw:       failed.Status,
			RequestID: failed.RequestID,
		})
	case errors.Is(err, generation.ErrTimeout):
		a.error(w, r, http.StatusInternalServerError, msgTimeout)
	case errors.Is(err, fal.ErrNoRequestID):
		a.error(w, r, http.StatusInternalServerError, msgNoRequestID)
	case errors.Is(err, domain.ErrInvalidPrompt):
		a.error(w, r, http.StatusBadRequest, msgInvalidPrompt)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		a.error(w, r, http.StatusServiceUnavailable, msgCancelled)
	case errors.As(err, &apiErr):
		a.json(w, http.StatusInternalServerError, generateResponse{
			Error: apiErr.Error(),
			Raw:   generation.Payload(apiErr.Body),
		})
	default:
		a.json(w, http.StatusInternalServerError, generateResponse{Error: err.Error()})
	}
}

// decodeGenerationRequest reads the JSON body. A missing body decodes as an
// empty request so that validation reports the missing prompt; a non-string
// prompt is reported as an invalid prompt.
func decodeGenerationRequest(w http.ResponseWriter, r *http.Request) (domain.GenerationRequest, error) {
	var req domain.GenerationRequest
	if r.Body == nil {
		return req, nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.GenerationRequest{}, nil
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "prompt" {
			return domain.GenerationRequest{}, domain.ErrInvalidPrompt
		}
		return domain.GenerationRequest{}, errors.Join(domain.ErrInvalidBody, err)
	}
	return req, nil
}
