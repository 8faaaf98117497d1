package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chat-relay/internal/provider"
	"chat-relay/internal/relay"
	"chat-relay/internal/router"
	"chat-relay/internal/translator"
)

type requestError struct {
	Status   int
	Message  string
	Friendly string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, message, friendly string) error {
	return c.JSON(status, translator.ErrorResponse{Error: message, ErrorFriendly: friendly})
}

func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			logger.Warn("error after response committed", "uri", c.Request().RequestURI, "err", err)
			return
		}

		var reqErr requestError
		if errors.As(err, &reqErr) {
			_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Friendly)
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			message := http.StatusText(he.Code)
			if he.Code == http.StatusMethodNotAllowed {
				message = "Method not allowed"
			}
			_ = writeError(c, he.Code, message, "")
			return
		}

		logger.Error("unhandled request error", "err", err)
		_ = writeError(c, http.StatusInternalServerError, "internal server error", "")
	}
}

// toHTTPError maps routing failures onto downstream statuses. Upstream
// bodies and secrets never reach the client; only the reason text does.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	friendly := translator.FriendlyMessage(err)
	switch {
	case errors.Is(err, router.ErrNoCredentials), errors.Is(err, provider.ErrMissingCredential):
		return requestError{Status: http.StatusInternalServerError, Message: err.Error(), Friendly: friendly}
	case errors.Is(err, router.ErrAllProvidersExhausted):
		return requestError{Status: http.StatusBadGateway, Message: err.Error(), Friendly: friendly}
	case errors.Is(err, provider.ErrUpstreamRejected), errors.Is(err, relay.ErrStreamTruncated):
		return requestError{Status: http.StatusBadGateway, Message: err.Error(), Friendly: friendly}
	default:
		return requestError{
			Status:   http.StatusBadGateway,
			Message:  fmt.Sprintf("upstream provider error: %v", err),
			Friendly: friendly,
		}
	}
}
