package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeprep/internal/stats/service"
	appErr "codeprep/pkg/errors"

	"github.com/gin-gonic/gin"
)

type fakeStats struct {
	err error
}

func (f fakeStats) GetStats(_ context.Context, userID string) (service.UserStats, error) {
	if f.err != nil {
		return service.UserStats{}, f.err
	}
	return service.UserStats{UserID: userID, AcceptedSubmits: 4, SolvedProblems: 3}, nil
}

func TestStatsController(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		stats      StatsReader
		wantStatus int
		wantCode   appErr.ErrorCode
	}{
		{name: "ok", stats: fakeStats{}, wantStatus: http.StatusOK, wantCode: appErr.Success},
		{name: "cache down", stats: fakeStats{err: appErr.Wrap(errors.New("dial tcp"), appErr.CacheError)}, wantStatus: http.StatusInternalServerError, wantCode: appErr.CacheError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewStatsController(tt.stats).RegisterRoutes(r.Group("/api/v1"))

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/stats", nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			var env struct {
				Code int                `json:"code"`
				Data *service.UserStats `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Code != int(tt.wantCode) {
				t.Fatalf("code = %d, want %d", env.Code, tt.wantCode)
			}
			if tt.wantCode == appErr.Success && (env.Data == nil || env.Data.UserID != "u1" || env.Data.SolvedProblems != 3) {
				t.Fatalf("data = %+v", env.Data)
			}
		})
	}
}
