package batch

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/cohort-lms/handlers"
	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/utils/response"
	"github.com/sahilchouksey/cohort-lms/utils/validation"
	"gorm.io/datatypes"
)

// BatchHandler handles batch and membership requests
type BatchHandler struct {
	store      repository.Store
	membership *services.MembershipService
	roster     *services.RosterService
	validator  *validation.Validator
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(store repository.Store, membership *services.MembershipService, roster *services.RosterService) *BatchHandler {
	return &BatchHandler{
		store:      store,
		membership: membership,
		roster:     roster,
		validator:  validation.NewValidator(),
	}
}

// CreateBatchRequest represents the request body for creating a batch
type CreateBatchRequest struct {
	Name        string               `json:"name" validate:"required,min=2,max=255"`
	Course      string               `json:"course" validate:"omitempty,max=100"`
	TeacherID   string               `json:"teacher_id" validate:"omitempty,entity_id"`
	TeacherName string               `json:"teacher_name" validate:"omitempty,max=255"`
	Status      model.BatchStatus    `json:"status" validate:"omitempty,oneof=active inactive completed"`
	Schedule    *model.BatchSchedule `json:"schedule"`
}

// AssignStudentsRequest is the body of POST /batches/:id/students
type AssignStudentsRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
}

// ListBatches handles GET /api/v1/batches
func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	batches, err := h.store.ListBatches(c.UserContext(), repository.BatchFilter{})
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch batches")
	}

	course := c.Query("course")
	if course == "" {
		return response.Success(c, batches)
	}
	filtered := make([]model.Batch, 0, len(batches))
	for _, b := range batches {
		if b.Course == course {
			filtered = append(filtered, b)
		}
	}
	return response.Success(c, filtered)
}

// GetBatch handles GET /api/v1/batches/:id
func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	batch, err := h.store.GetBatch(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "Batch not found")
		}
		return response.InternalServerError(c, "Failed to fetch batch")
	}
	return response.Success(c, batch)
}

// CreateBatch handles POST /api/v1/batches. Rosters start empty and are
// filled through the students endpoint so the membership rules apply.
func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req CreateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	batch := &model.Batch{
		Name:        validation.SanitizeString(req.Name),
		Course:      validation.SanitizeString(req.Course),
		TeacherID:   validation.SanitizeString(req.TeacherID),
		TeacherName: validation.SanitizeString(req.TeacherName),
		Status:      req.Status,
	}
	if req.Schedule != nil {
		batch.Schedule = datatypes.NewJSONType(*req.Schedule)
	}

	if err := h.store.CreateBatch(c.UserContext(), batch); err != nil {
		return response.InternalServerError(c, "Failed to create batch")
	}
	return response.Created(c, batch)
}

// DeleteBatch handles DELETE /api/v1/batches/:id. Students and videos that
// point at the batch are detached first so no dangling pointer survives.
func (h *BatchHandler) DeleteBatch(c *fiber.Ctx) error {
	ctx := c.UserContext()
	batch, err := h.store.GetBatch(ctx, c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "Batch not found")
		}
		return response.InternalServerError(c, "Failed to fetch batch")
	}

	members, err := h.store.FindUsers(ctx, repository.UserFilter{BatchID: &batch.ID})
	if err != nil {
		return response.InternalServerError(c, "Failed to load batch members")
	}
	if len(members) > 0 {
		memberIDs := make([]string, len(members))
		for i, u := range members {
			memberIDs[i] = u.ID
		}
		if _, err := h.store.SetUsersBatch(ctx, memberIDs, nil); err != nil {
			return response.InternalServerError(c, "Failed to detach students")
		}
	}

	videos, err := h.store.ListVideos(ctx, repository.VideoFilter{BatchID: &batch.ID})
	if err != nil {
		return response.InternalServerError(c, "Failed to load batch videos")
	}
	if len(videos) > 0 {
		videoIDs := make([]string, len(videos))
		for i, v := range videos {
			videoIDs[i] = v.ID
		}
		if _, err := h.store.UnassignVideos(ctx, videoIDs); err != nil {
			return response.InternalServerError(c, "Failed to detach videos")
		}
	}

	if err := h.store.DeleteBatch(ctx, batch.ID); err != nil {
		return response.InternalServerError(c, "Failed to delete batch")
	}
	return response.SuccessWithMessage(c, "Batch deleted", fiber.Map{
		"id":                batch.ID,
		"students_detached": len(members),
		"videos_unassigned": len(videos),
	})
}

// AssignStudents handles POST /api/v1/batches/:id/students
func (h *BatchHandler) AssignStudents(c *fiber.Ctx) error {
	var req AssignStudentsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.membership.AssignStudentsToBatch(c.UserContext(), c.Params("id"), req.StudentIDs)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, result)
}

// RemoveStudent handles DELETE /api/v1/batches/:id/students/:studentId
func (h *BatchHandler) RemoveStudent(c *fiber.Ctx) error {
	result, err := h.membership.RemoveStudentFromBatch(c.UserContext(), c.Params("id"), c.Params("studentId"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, result)
}

// RebuildRoster handles POST /api/v1/batches/:id/roster/rebuild
func (h *BatchHandler) RebuildRoster(c *fiber.Ctx) error {
	result, err := h.roster.RebuildRoster(c.UserContext(), c.Params("id"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, result)
}
