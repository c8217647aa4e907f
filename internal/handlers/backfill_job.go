package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mailpipe/internal/k8s"
	"mailpipe/internal/models"

	"github.com/labstack/echo/v4"
)

// JobLauncher runs backfill Jobs on the cluster
type JobLauncher interface {
	CreateBackfillJob(ctx context.Context, jobName, containerImage string, accounts []string) error
	GetJobStatus(ctx context.Context, jobName string) (*k8s.JobStatus, error)
	DeleteJob(ctx context.Context, jobName string) error
}

// LauncherFactory connects to the cluster on demand
type LauncherFactory func() (JobLauncher, error)

// TriggerBackfillJobHandler starts a Kubernetes Job that backfills the given
// accounts, or every configured account when none are given
// @Summary Trigger backfill job
// @Description Starts a one-off Kubernetes Job running the backfill command
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.BackfillJobRequest false "Accounts to backfill"
// @Success 200 {object} models.BackfillJobResponse
// @Failure 400 {object} models.BackfillJobResponse
// @Failure 500 {object} models.BackfillJobResponse
// @Router /api/admin/backfill-job [post]
func TriggerBackfillJobHandler(newLauncher LauncherFactory, image string) echo.HandlerFunc {
	return func(c echo.Context) error {
		fmt.Println("[BACKFILL_JOB] Received trigger request")

		var req models.BackfillJobRequest
		if err := c.Bind(&req); err != nil {
			fmt.Printf("[BACKFILL_JOB] Invalid request: %v\n", err)
			return c.JSON(http.StatusBadRequest, models.BackfillJobResponse{
				Success: false,
				Error:   "Invalid request body",
			})
		}

		launcher, err := newLauncher()
		if err != nil {
			fmt.Printf("[BACKFILL_JOB] Failed to create Kubernetes client: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.BackfillJobResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to create Kubernetes client: %v", err),
			})
		}

		jobName := k8s.BackfillJobName(time.Now())

		ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		defer cancel()

		if err := launcher.CreateBackfillJob(ctx, jobName, image, req.Accounts); err != nil {
			fmt.Printf("[BACKFILL_JOB] Failed to create job: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.BackfillJobResponse{
				Success: false,
				Error:   fmt.Sprintf("Failed to create Kubernetes job: %v", err),
			})
		}

		fmt.Printf("[BACKFILL_JOB] Successfully created job: %s\n", jobName)

		return c.JSON(http.StatusOK, models.BackfillJobResponse{
			Success: true,
			Message: "Backfill job triggered successfully",
			JobName: jobName,
		})
	}
}

// GetBackfillJobStatusHandler gets the status of a backfill job
// @Summary Get backfill job status
// @Tags admin
// @Produce json
// @Param jobName path string true "Job name"
// @Success 200 {object} k8s.JobStatus
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/admin/backfill-job/{jobName} [get]
func GetBackfillJobStatusHandler(newLauncher LauncherFactory) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobName := c.Param("jobName")

		launcher, err := newLauncher()
		if err != nil {
			fmt.Printf("[BACKFILL_JOB] Failed to create Kubernetes client: %v\n", err)
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: fmt.Sprintf("Failed to create Kubernetes client: %v", err),
			})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()

		status, err := launcher.GetJobStatus(ctx, jobName)
		if err != nil {
			fmt.Printf("[BACKFILL_JOB] Failed to get job status: %v\n", err)
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: fmt.Sprintf("Job not found: %v", err),
			})
		}

		return c.JSON(http.StatusOK, status)
	}
}

// DeleteBackfillJobHandler removes a finished or stuck backfill job
// @Summary Delete backfill job
// @Tags admin
// @Produce json
// @Param jobName path string true "Job name"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/admin/backfill-job/{jobName} [delete]
func DeleteBackfillJobHandler(newLauncher LauncherFactory) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobName := c.Param("jobName")

		launcher, err := newLauncher()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: fmt.Sprintf("Failed to create Kubernetes client: %v", err),
			})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()

		if err := launcher.DeleteJob(ctx, jobName); err != nil {
			fmt.Printf("[BACKFILL_JOB] Failed to delete job %s: %v\n", jobName, err)
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: fmt.Sprintf("Job not found: %v", err),
			})
		}

		fmt.Printf("[BACKFILL_JOB] Deleted job: %s\n", jobName)
		return c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
	}
}
