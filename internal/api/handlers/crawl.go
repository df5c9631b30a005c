package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"indeed-crawler/internal/background"
	"indeed-crawler/internal/crawler"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

var validate = validator.New()

// CrawlHandler accepts a crawl request, validates it and queues it for
// background processing.
func CrawlHandler(svc *crawler.Service, taskManager background.TaskManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := utils.LogWithRequestID(requestID)

		logger.Info("Crawl request received")

		var req models.CrawlRequest
		if err := c.Bind(&req); err != nil {
			logger.WithError(err).Error("Failed to bind request")
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "invalid_request",
				Message:   "Invalid request format",
				RequestID: requestID,
				Timestamp: time.Now(),
			})
		}

		if err := validate.Struct(&req); err != nil {
			logger.WithError(err).Error("Request validation failed")
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:     "validation_failed",
				Message:   err.Error(),
				RequestID: requestID,
				Timestamp: time.Now(),
			})
		}

		processID := utils.GenerateRequestID()

		if err := taskManager.SubmitCrawlTask(c.Request().Context(), processID, req, svc); err != nil {
			logger.WithError(err).Error("Failed to submit crawl task")
			return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error:     "task_submission_failed",
				Message:   err.Error(),
				RequestID: requestID,
				Timestamp: time.Now(),
			})
		}

		logger.WithField("process_id", processID).Info("Crawl task accepted")

		return c.JSON(http.StatusAccepted, models.CrawlAcceptedResponse{
			ProcessID: processID,
			Status:    string(background.TaskStatusAccepted),
			Message:   "Crawl queued for processing",
			Timestamp: time.Now(),
		})
	}
}

// CrawlStatusHandler returns the status and result of a crawl task.
func CrawlStatusHandler(taskManager background.TaskManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		processID := c.Param("process_id")

		result, err := taskManager.GetTaskResult(c.Request().Context(), processID)
		if err != nil {
			if err == background.ErrTaskNotFound {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{
					Error:     "task_not_found",
					Message:   "No crawl task with that process ID",
					RequestID: requestID,
					Timestamp: time.Now(),
				})
			}
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "task_lookup_failed",
				Message:   err.Error(),
				RequestID: requestID,
				Timestamp: time.Now(),
			})
		}

		return c.JSON(http.StatusOK, result)
	}
}

// CrawlListHandler lists all tracked crawl tasks (for monitoring).
func CrawlListHandler(taskManager background.TaskManager) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()

		results, err := taskManager.ListTasks(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:     "task_list_failed",
				Message:   err.Error(),
				RequestID: requestID,
				Timestamp: time.Now(),
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"tasks": results,
			"count": len(results),
		})
	}
}
