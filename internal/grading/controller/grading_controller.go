package controller

import (
	"context"
	"strings"
	"time"

	"codeprep/internal/grading/model"
	"codeprep/internal/grading/service"
	"codeprep/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Grader is the part of the grading service the HTTP layer needs.
type Grader interface {
	Run(ctx context.Context, input service.GradeInput) (*model.GradeOutcome, error)
	Submit(ctx context.Context, input service.GradeInput) (*model.GradeOutcome, error)
	GetSubmission(ctx context.Context, submissionID string) (*model.Submission, error)
	GetSource(ctx context.Context, submissionID string) (*model.Submission, error)
}

// GradingController handles run, submit and submission lookup endpoints.
type GradingController struct {
	grader Grader
}

// NewGradingController creates a new GradingController.
func NewGradingController(grader Grader) *GradingController {
	return &GradingController{grader: grader}
}

// RegisterRoutes mounts the grading endpoints under r.
func (h *GradingController) RegisterRoutes(r gin.IRouter) {
	submissions := r.Group("/submissions")
	submissions.POST("/run", h.Run)
	submissions.POST("", h.Submit)
	submissions.GET("/:id", h.Get)
	submissions.GET("/:id/source", h.GetSource)
}

// Run grades code against sample cases.
func (h *GradingController) Run(c *gin.Context) {
	h.grade(c, h.grader.Run)
}

// Submit grades code against all cases.
func (h *GradingController) Submit(c *gin.Context) {
	h.grade(c, h.grader.Submit)
}

func (h *GradingController) grade(c *gin.Context, fn func(context.Context, service.GradeInput) (*model.GradeOutcome, error)) {
	var req GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	outcome, err := fn(c.Request.Context(), service.GradeInput{
		UserID:     req.UserID,
		ProblemID:  req.ProblemID,
		Language:   req.Language,
		SourceCode: req.SourceCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, outcome)
}

// Get returns one submission with its per-case results.
func (h *GradingController) Get(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.grader.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// GetSource returns the merged source that was sent to the judge.
func (h *GradingController) GetSource(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.grader.GetSource(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SourceResponse{
		SubmissionID: submission.ID,
		ProblemID:    submission.ProblemID,
		UserID:       submission.UserID,
		Language:     submission.Language,
		SourceCode:   submission.SourceCode,
		CreatedAt:    submission.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// GradeRequest is the run and submit payload.
type GradeRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	ProblemID  int64  `json:"problem_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// SourceResponse defines source query response payload.
type SourceResponse struct {
	SubmissionID string `json:"submission_id"`
	ProblemID    int64  `json:"problem_id"`
	UserID       string `json:"user_id"`
	Language     string `json:"language"`
	SourceCode   string `json:"source_code"`
	CreatedAt    string `json:"created_at"`
}
