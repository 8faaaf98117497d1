package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"chat-relay/internal/models"
	"chat-relay/internal/relay"
	"chat-relay/internal/translator"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStream(c echo.Context) error {
	var req translator.GenerateRequest
	if err := decodeRequestBody(c, &req, true); err != nil {
		return err
	}

	ctx := c.Request().Context()
	stream := newEventStream(c)

	outcome, err := s.router.Stream(ctx, req.ToGeneration(translator.DefaultGreeting), stream)
	if errors.Is(err, relay.ErrCancelled) {
		s.logger.Info("client went away", "model_used", outcome.ModelUsed, "chars", len(outcome.FinalText))
		return nil
	}
	if err != nil && !stream.Started() {
		return toHTTPError(err)
	}
	if err != nil && outcome.Error == "" {
		outcome.Error = err.Error()
	}
	return stream.Close(outcome)
}

// handleGenerate serves blocking generation. GET keeps the legacy greeting
// endpoint, which always asks the secondary provider.
func (s *Server) handleGenerate(c echo.Context) error {
	var req translator.GenerateRequest
	if c.Request().Method == http.MethodGet {
		req.Model = string(models.PreferSecondary)
	} else if err := decodeRequestBody(c, &req, true); err != nil {
		return err
	}

	outcome, err := s.router.Generate(c.Request().Context(), req.ToGeneration(translator.DefaultGreeting))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromOutcome(outcome))
}

func (s *Server) handlePlan(c echo.Context) error {
	var req translator.GenerateRequest
	if err := decodeRequestBody(c, &req, false); err != nil {
		return err
	}
	if len(req.Messages) == 0 {
		return requestError{Status: http.StatusBadRequest, Message: "messages must not be empty"}
	}

	genReq := models.GenerationRequest{
		Prompt:     translator.PlannerPrompt(req.Messages),
		Preference: models.ParsePreference(req.Model),
		ModelID:    req.ModelID,
	}

	outcome, err := s.router.Generate(c.Request().Context(), genReq)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.PlanResponse{
		Plan:           outcome.FinalText,
		ModelUsed:      string(outcome.ModelUsed),
		FallbackReason: outcome.FallbackReason,
	})
}

func (s *Server) handleCheckKey(c echo.Context) error {
	providers := map[string]bool{
		string(models.ProviderOpenAI):   s.creds.Has(models.ProviderOpenAI),
		string(models.ProviderDeepSeek): s.creds.Has(models.ProviderDeepSeek),
	}

	var configured []string
	for _, id := range []models.ProviderID{models.ProviderOpenAI, models.ProviderDeepSeek} {
		if providers[string(id)] {
			configured = append(configured, string(id))
		}
	}

	if len(configured) == 0 {
		return c.JSON(http.StatusOK, translator.KeyStatusResponse{
			Status:    "error",
			Message:   "no provider API key is configured",
			Providers: providers,
		})
	}
	return c.JSON(http.StatusOK, translator.KeyStatusResponse{
		Status:    "success",
		Message:   "API key configured for " + strings.Join(configured, ", "),
		Providers: providers,
	})
}

// decodeRequestBody reads a single JSON object. When optional is set an empty
// body decodes to the zero value.
func decodeRequestBody[T any](c echo.Context, target *T, optional bool) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			if optional {
				return nil
			}
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
		}
	}
	return nil
}
