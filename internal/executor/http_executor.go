// Package executor holds the engine-boundary implementations of the
// permission-operation executor capability. The engine itself only
// sees the types.Executor interface; everything vendor-shaped lives
// here.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/valyala/fasthttp"

	"vmtag/perm-engine/internal/config"
	"vmtag/perm-engine/pkg/types"
)

const defaultRequestTimeout = 30 * time.Second

// Error-message locations tried against a JSON error body, in order.
var errorMessagePaths = []string{"$.error.message", "$.message", "$.detail"}

// HTTPExecutor performs permission operations against a
// management-plane REST API. Failures are classified from the HTTP
// status: 409 is a conflict (state already present), 408/429 and 5xx
// are transient, remaining 4xx are permanent, and network-level errors
// are transient.
type HTTPExecutor struct {
	client  *fasthttp.Client
	baseURL string
	token   string
	timeout time.Duration
}

// NewHTTPExecutor creates an executor for the configured target.
func NewHTTPExecutor(cfg config.TargetConfig) *HTTPExecutor {
	timeout := cfg.RequestTimeout.Std()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPExecutor{
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
		timeout: timeout,
	}
}

// Execute performs one operation attempt. The retry controller decides
// what to do with the reported category.
func (e *HTTPExecutor) Execute(ctx context.Context, op types.Operation) types.ExecResult {
	method, path, ok := route(op)
	if !ok {
		return failure(types.CategoryPermanent, fmt.Sprintf("unsupported action %q", op.Action))
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(e.baseURL + path)
	req.Header.SetContentType("application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	if len(op.Payload) > 0 {
		req.SetBodyString(oj.JSON(op.Payload))
	}

	if err := e.client.DoTimeout(req, resp, e.timeout); err != nil {
		return failure(types.CategoryTransient, fmt.Sprintf("request %s %s: %s", method, path, err))
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return types.ExecResult{Success: true}
	}

	return failure(classifyStatus(status), responseMessage(status, resp.Body()))
}

// route maps an operation to its API call.
func route(op types.Operation) (method, path string, ok bool) {
	switch op.Action {
	case types.ActionAssignPermission:
		return fasthttp.MethodPost, "/api/v1/vms/" + op.TargetName + "/permissions", true
	case types.ActionRemovePermission:
		return fasthttp.MethodDelete, "/api/v1/vms/" + op.TargetName + "/permissions", true
	case types.ActionApplyTag:
		return fasthttp.MethodPost, "/api/v1/vms/" + op.TargetName + "/tags", true
	case types.ActionRemoveTag:
		return fasthttp.MethodDelete, "/api/v1/vms/" + op.TargetName + "/tags", true
	}
	return "", "", false
}

// classifyStatus maps an HTTP status code to an error category.
func classifyStatus(status int) types.ErrorCategory {
	switch {
	case status == fasthttp.StatusConflict:
		return types.CategoryConflict
	case status == fasthttp.StatusRequestTimeout,
		status == fasthttp.StatusTooManyRequests,
		status >= 500:
		return types.CategoryTransient
	default:
		return types.CategoryPermanent
	}
}

// responseMessage pulls a human-readable message out of a JSON error
// body, falling back to the status line when the body is opaque.
func responseMessage(status int, body []byte) string {
	if len(body) > 0 {
		if doc, err := oj.Parse(body); err == nil {
			for _, expr := range errorMessagePaths {
				path, perr := jp.ParseString(expr)
				if perr != nil {
					continue
				}
				if results := path.Get(doc); len(results) > 0 {
					if msg, isStr := results[0].(string); isStr && msg != "" {
						return msg
					}
				}
			}
		}
	}
	return fmt.Sprintf("HTTP %d %s", status, fasthttp.StatusMessage(status))
}

func failure(category types.ErrorCategory, message string) types.ExecResult {
	return types.ExecResult{
		Success: false,
		Err:     types.NewExecError(category, message),
	}
}
