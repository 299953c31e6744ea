package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"nsfas-assistant/internal/domain"
	"nsfas-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// Asker runs one question as a single-turn session.
type Asker interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

type Handler struct {
	uc Asker
}

type askRequest struct {
	Question string `json:"question"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type askResponse struct {
	Answer       string         `json:"answer"`
	Outcome      domain.Outcome `json:"outcome"`
	Fallback     bool           `json:"fallback"`
	TicketNumber string         `json:"ticketNumber,omitempty"`
	SessionID    string         `json:"sessionId"`
	Degraded     bool           `json:"degraded,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(uc Asker) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

// Handle serves POST /ask behind API Gateway.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.With("correlation_id", correlationID)

	if event.HTTPMethod != "" && event.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"}), nil
	}

	var req askRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		logger.Warn("invalid request body", "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_json"}), nil
	}

	out, err := h.uc.Ask(ctx, usecase.AskInput{Question: req.Question, Name: req.Name, Email: req.Email})
	if err != nil {
		status, body := mapError(err)
		logger.Error("ask failed", "status", status, "code", body.Error, "reason", body.Reason, "err", err)
		return jsonResponse(status, correlationID, body), nil
	}

	logger.Info("ask served", "session", out.SessionID, "outcome", out.Outcome, "fallback", out.Fallback)
	return jsonResponse(http.StatusOK, correlationID, askResponse{
		Answer:       out.Answer,
		Outcome:      out.Outcome,
		Fallback:     out.Fallback,
		TicketNumber: out.TicketNumber,
		SessionID:    out.SessionID,
		Degraded:     out.Degraded,
	}), nil
}

func mapError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	body := errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, body
	case usecase.ErrorExternalService:
		if strings.HasSuffix(ucErr.Reason, "_rate_limited") {
			return http.StatusTooManyRequests, body
		}
		return http.StatusBadGateway, body
	case usecase.ErrorConfiguration:
		return http.StatusServiceUnavailable, body
	default:
		return http.StatusInternalServerError, body
	}
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}
