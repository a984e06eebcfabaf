package video

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"github.com/sahilchouksey/cohort-lms/utils/response"
	"github.com/sahilchouksey/cohort-lms/utils/validation"
	"github.com/sahilchouksey/cohort-lms/utils/videolink"
)

// VideoHandler handles classroom video requests
type VideoHandler struct {
	videos    repository.VideoRepository
	batches   repository.BatchRepository
	validator *validation.Validator
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(videos repository.VideoRepository, batches repository.BatchRepository) *VideoHandler {
	return &VideoHandler{
		videos:    videos,
		batches:   batches,
		validator: validation.NewValidator(),
	}
}

// CreateVideoRequest represents the request body for creating a video
type CreateVideoRequest struct {
	Title             string `json:"title" validate:"required,max=500"`
	Date              string `json:"date" validate:"yyyymmdd"`
	Course            string `json:"course" validate:"omitempty,max=255"`
	BatchID           string `json:"batch_id"`
	VideoSource       string `json:"video_source" validate:"required,video_source"`
	VideoURL          string `json:"video_url" validate:"required"`
	ExternalContentID string `json:"external_content_id" validate:"omitempty,max=255"`
}

// ListVideos handles GET /api/v1/videos?batch_id=&unassigned=true
func (h *VideoHandler) ListVideos(c *fiber.Ctx) error {
	var filter repository.VideoFilter
	if raw := c.Query("batch_id"); raw != "" {
		batchID, ok := ids.ParseOptionalID(raw)
		if !ok {
			return response.BadRequest(c, "batch_id is not a usable identifier")
		}
		filter.BatchID = &batchID
	}
	if raw := c.Query("unassigned"); raw != "" {
		unassigned, err := strconv.ParseBool(raw)
		if err != nil {
			return response.BadRequest(c, "unassigned must be true or false")
		}
		filter.Unassigned = unassigned
	}
	if filter.BatchID != nil && filter.Unassigned {
		return response.BadRequest(c, "batch_id and unassigned cannot be combined")
	}

	videos, err := h.videos.ListVideos(c.UserContext(), filter)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch videos")
	}
	return response.Success(c, videos)
}

// CreateVideo handles POST /api/v1/videos. The external content id is
// derived from the link when the caller does not send one, so later
// duplicate detection can match re-uploads of the same recording.
func (h *VideoHandler) CreateVideo(c *fiber.Ctx) error {
	var req CreateVideoRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	video := &model.ClassroomVideo{
		Title:             validation.SanitizeString(req.Title),
		Date:              req.Date,
		Course:            validation.SanitizeString(req.Course),
		VideoSource:       model.VideoSource(req.VideoSource),
		VideoURL:          validation.SanitizeString(req.VideoURL),
		ExternalContentID: validation.SanitizeString(req.ExternalContentID),
	}

	if batchID, ok := ids.ParseOptionalID(req.BatchID); ok {
		batch, err := h.batches.GetBatch(c.UserContext(), batchID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return response.NotFound(c, "Batch not found")
			}
			return response.InternalServerError(c, "Failed to verify batch")
		}
		video.BatchID = &batch.ID
		if video.Course == "" {
			video.Course = batch.Course
		}
	}

	if video.ExternalContentID == "" {
		video.ExternalContentID = videolink.ExtractContentID(req.VideoSource, video.VideoURL)
	}

	if err := h.videos.CreateVideo(c.UserContext(), video); err != nil {
		return response.InternalServerError(c, "Failed to create video")
	}
	return response.Created(c, video)
}
