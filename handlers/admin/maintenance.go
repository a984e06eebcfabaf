package admin

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/cohort-lms/handlers"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/utils/response"
)

// ReconcilerOpener opens the legacy store and returns a reconciliation
// service reading from it. release closes the store and is always safe to call.
type ReconcilerOpener func(ctx context.Context) (svc *services.ReconciliationService, release func(), err error)

// MaintenanceHandler exposes the consistency jobs to admins
type MaintenanceHandler struct {
	roster         *services.RosterService
	dedupe         *services.VideoDedupeService
	openReconciler ReconcilerOpener // nil when no legacy store is configured
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(roster *services.RosterService, dedupe *services.VideoDedupeService, openReconciler ReconcilerOpener) *MaintenanceHandler {
	return &MaintenanceHandler{
		roster:         roster,
		dedupe:         dedupe,
		openReconciler: openReconciler,
	}
}

// RebuildRosters handles POST /api/v1/admin/maintenance/rebuild-rosters
func (h *MaintenanceHandler) RebuildRosters(c *fiber.Ctx) error {
	result, err := h.roster.RebuildAllRosters(c.UserContext())
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, result)
}

// DedupeVideos handles POST /api/v1/admin/maintenance/dedupe-videos.
// dry_run defaults to true; pass dry_run=false to resolve.
func (h *MaintenanceHandler) DedupeVideos(c *fiber.Ctx) error {
	dryRun, err := boolQuery(c, "dry_run", true)
	if err != nil {
		return response.BadRequest(c, "dry_run must be true or false")
	}
	danglingAsOrphan, err := boolQuery(c, "dangling_as_orphan", false)
	if err != nil {
		return response.BadRequest(c, "dangling_as_orphan must be true or false")
	}

	report, err := h.dedupe.DedupeVideos(c.UserContext(), services.DedupeOptions{
		BatchID:          c.Query("batch_id"),
		DryRun:           dryRun,
		Verbose:          c.QueryBool("verbose"),
		DanglingAsOrphan: danglingAsOrphan,
	})
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, report)
}

// ReconcileBatches handles POST /api/v1/admin/maintenance/reconcile-batches.
// The legacy store is opened per request so exports replaced since startup
// are seen. Without apply=true only the mapping is returned.
func (h *MaintenanceHandler) ReconcileBatches(c *fiber.Ctx) error {
	if h.openReconciler == nil {
		return response.ServiceUnavailable(c, "Legacy store is not configured")
	}
	apply, err := boolQuery(c, "apply", false)
	if err != nil {
		return response.BadRequest(c, "apply must be true or false")
	}

	reconcile, release, err := h.openReconciler(c.UserContext())
	if release != nil {
		defer release()
	}
	if err != nil {
		return handlers.RespondError(c, &services.ExternalStoreError{Op: "open legacy store", Err: err})
	}

	result, err := reconcile.Run(c.UserContext())
	if err != nil {
		return handlers.RespondError(c, err)
	}
	if !apply {
		return response.Success(c, fiber.Map{"reconcile": result})
	}

	applied, err := reconcile.Apply(c.UserContext(), result)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return response.Success(c, fiber.Map{"reconcile": result, "apply": applied})
}

func boolQuery(c *fiber.Ctx, key string, fallback bool) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseBool(raw)
}
