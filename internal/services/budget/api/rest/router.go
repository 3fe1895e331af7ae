// Package rest serves the budget operations over HTTP as
// "/api/<operation>" routes with the {"apiVersion","data"} envelope.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/platform/requestctx"
	"github.com/openkfw/trubudget/internal/services/budget/api/auth"
	"github.com/openkfw/trubudget/internal/services/budget/api/operations"
	"github.com/openkfw/trubudget/internal/services/budget/app"
)

// APIVersion is the only request and response envelope version.
const APIVersion = "1.0"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	APIVersion string          `json:"apiVersion"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type handler struct {
	app      *app.Service
	verifier *auth.Verifier
}

// NewRouter returns the HTTP API for svc. A nil metrics handler leaves
// /metrics unrouted.
func NewRouter(svc *app.Service, verifier *auth.Verifier, metrics http.Handler) *gin.Engine {
	h := &handler{app: svc, verifier: verifier}
	r := gin.New()
	r.Use(gin.LoggerWithWriter(log.Writer()), gin.Recovery())

	r.GET("/health", h.health)
	r.GET("/api/health", h.health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api", h.authenticate)
	for _, op := range operations.All() {
		api.Handle(string(op.Method), "/"+op.Name, h.serve(op))
	}
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, fmt.Sprintf("route %s %s not found", c.Request.Method, c.Request.URL.Path))
	})
	return r
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"apiVersion": APIVersion, "data": "OK"})
}

func (h *handler) authenticate(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		writeError(c, http.StatusUnauthorized, "bearer token is required")
		c.Abort()
		return
	}
	user, err := h.verifier.Verify(token)
	if err != nil {
		writeError(c, http.StatusUnauthorized, err.Error())
		c.Abort()
		return
	}
	ctx := auth.WithUser(c.Request.Context(), user)
	ctx = requestctx.WithSource(ctx, "http")
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func (h *handler) serve(op operations.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actor, ok := auth.UserFromContext(ctx)
		if !ok {
			writeError(c, http.StatusUnauthorized, "authentication required")
			return
		}
		in, err := readInput(c, op)
		if err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		result, err := op.Handle(ctx, h.app, actor, in)
		if err != nil {
			writeAppError(c, op, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"apiVersion": APIVersion, "data": result})
	}
}

func readInput(c *gin.Context, op operations.Operation) (operations.Input, error) {
	if op.Method == operations.Read {
		return operations.QueryInput(c.Request.URL.Query()), nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		return operations.Input{}, fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return operations.Input{}, errors.New("request body is too large")
	}
	if len(body) == 0 {
		return operations.JSONInput(nil), nil
	}
	var req envelope
	if err := json.Unmarshal(body, &req); err != nil {
		return operations.Input{}, fmt.Errorf("request body is not a JSON envelope: %w", err)
	}
	if req.APIVersion != "" && req.APIVersion != APIVersion {
		return operations.Input{}, fmt.Errorf("unsupported apiVersion %q, expected %q", req.APIVersion, APIVersion)
	}
	return operations.JSONInput(req.Data), nil
}

func writeAppError(c *gin.Context, op operations.Operation, err error) {
	code := apperrors.GetCode(err)
	if code == apperrors.CodeUnknown || code.Kind() == apperrors.KindUnexpected {
		log.Printf("%s failed for %s: %v", op.Name, requestctx.UserIDFromContext(c.Request.Context()), err)
		message := "an unexpected error occurred"
		if apperrors.IsNonRetryable(err) {
			message = "the request was only partially stored and must not be retried"
		}
		writeError(c, http.StatusInternalServerError, message)
		return
	}
	var appErr *apperrors.Error
	message := err.Error()
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeError(c, code.HTTPStatus(), message)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"apiVersion": APIVersion,
		"error":      errorBody{Code: status, Message: message},
	})
}
