package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
)

func (s *Server) handleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(s.validate); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	result, err := s.engine.Ask(c.Request.Context(), req.Agent, req.Prompt, req.SessionID, req.OverrideModel)
	if err != nil {
		errorResponse(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleChain(c *gin.Context) {
	var req ChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(s.validate); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	results, err := s.engine.Chain(c.Request.Context(), req.Prompt, req.SessionID, req.OverrideModel)
	if err != nil {
		// Partial results (e.g. the builder succeeded but a later stage
		// failed) are still returned alongside the error detail so the
		// caller can see how far the chain got.
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "results": results})
		return
	}
	c.JSON(http.StatusOK, results)
}

// statusFor maps the chainerr taxonomy to an HTTP status, mirroring
// chainerr.ExitCode's CLI mapping.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chainerr.ErrInvalidInput), errors.Is(err, chainerr.ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, chainerr.ErrConfig):
		return http.StatusInternalServerError
	case errors.Is(err, chainerr.ErrNotFound):
		return http.StatusNotFound
	case isAllProvidersFailed(err):
		return http.StatusServiceUnavailable
	case isStoreError(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func isAllProvidersFailed(err error) bool {
	var apf *chainerr.AllProvidersFailed
	return errors.As(err, &apf)
}

func isStoreError(err error) bool {
	var se *chainerr.StoreError
	return errors.As(err, &se)
}
