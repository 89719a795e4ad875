package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeprep/internal/common/http/middleware"
	"codeprep/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

type idsResponse struct {
	TraceID      string `json:"trace_id"`
	RequestID    string `json:"request_id"`
	CtxTraceID   string `json:"ctx_trace_id"`
	CtxRequestID string `json:"ctx_request_id"`
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.Correlation())
	router.GET("/ids", func(c *gin.Context) {
		ctx := c.Request.Context()
		ctxTrace, _ := ctx.Value(contextkey.TraceID).(string)
		ctxRequest, _ := ctx.Value(contextkey.RequestID).(string)
		c.JSON(http.StatusOK, idsResponse{
			TraceID:      c.GetString("trace_id"),
			RequestID:    c.GetString("request_id"),
			CtxTraceID:   ctxTrace,
			CtxRequestID: ctxRequest,
		})
	})
	return router
}

func TestCorrelation(t *testing.T) {
	cases := []struct {
		name        string
		headers     map[string]string
		wantTrace   string
		wantRequest string
	}{
		{name: "generates ids"},
		{
			name:        "reuses inbound ids",
			headers:     map[string]string{"X-Trace-Id": "trace-123", "X-Request-Id": " req-123 "},
			wantTrace:   "trace-123",
			wantRequest: "req-123",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ids", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			newRouter().ServeHTTP(rec, req)

			var resp idsResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.TraceID == "" || resp.CtxTraceID != resp.TraceID || rec.Header().Get("X-Trace-Id") != resp.TraceID {
				t.Fatalf("trace id mismatch: %+v header=%q", resp, rec.Header().Get("X-Trace-Id"))
			}
			if resp.RequestID == "" || resp.CtxRequestID != resp.RequestID || rec.Header().Get("X-Request-Id") != resp.RequestID {
				t.Fatalf("request id mismatch: %+v header=%q", resp, rec.Header().Get("X-Request-Id"))
			}
			if resp.TraceID == resp.RequestID {
				t.Fatalf("trace and request ids must differ when generated")
			}
			if tc.wantTrace != "" && resp.TraceID != tc.wantTrace {
				t.Fatalf("trace id = %q, want %q", resp.TraceID, tc.wantTrace)
			}
			if tc.wantRequest != "" && resp.RequestID != tc.wantRequest {
				t.Fatalf("request id = %q, want %q", resp.RequestID, tc.wantRequest)
			}
		})
	}
}
