package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"github.com/sahilchouksey/cohort-lms/utils/metrics"
	"go.uber.org/zap"
)

// DedupeAction is what happens to the losers of a duplicate group
type DedupeAction string

const (
	DedupeUnassign DedupeAction = "unassign"
	DedupeDelete   DedupeAction = "delete"
)

// Duplicate group keys
const (
	KeyContentID = "content_id"
	KeyTitleDate = "title_date"
)

// Duplicate group scopes
const (
	ScopeBatch  = "batch"
	ScopeOrphan = "orphan"
)

// DedupeOptions controls a dedupe pass
type DedupeOptions struct {
	BatchID string // Restrict the batch phase to one batch; empty means all
	DryRun  bool
	Verbose bool
	// DanglingAsOrphan treats videos whose batch no longer exists as orphans,
	// making their losers delete-eligible.
	DanglingAsOrphan bool
}

// DuplicateGroup is one set of rows representing the same lecture
type DuplicateGroup struct {
	Scope       string       `json:"scope"`
	BatchID     string       `json:"batch_id,omitempty"`
	Key         string       `json:"key"`
	Value       string       `json:"value"`
	CanonicalID string       `json:"canonical_id"`
	LoserIDs    []string     `json:"loser_ids"`
	Action      DedupeAction `json:"action"`
}

// DedupeReport lists every group found and what was (or would be) done
type DedupeReport struct {
	DryRun     bool                 `json:"dry_run"`
	Scanned    int                  `json:"scanned"`
	Groups     []DuplicateGroup     `json:"groups"`
	Unassigned []string             `json:"unassigned"`
	Deleted    []string             `json:"deleted"`
	Warnings   []ConsistencyWarning `json:"warnings"`
}

// VideoDedupeService collapses duplicate classroom videos to one canonical row
type VideoDedupeService struct {
	videos  repository.VideoRepository
	batches repository.BatchRepository
	log     *zap.Logger
}

// NewVideoDedupeService creates a new dedupe service
func NewVideoDedupeService(videos repository.VideoRepository, batches repository.BatchRepository, log *zap.Logger) *VideoDedupeService {
	return &VideoDedupeService{videos: videos, batches: batches, log: logger.OrNop(log)}
}

// DedupeVideos finds duplicate groups and resolves them. Within a batch the
// losers are unassigned; among orphans (including rows this pass unassigns)
// losers sharing a content id are deleted. One pass reaches a state in which
// the next pass finds nothing.
func (s *VideoDedupeService) DedupeVideos(ctx context.Context, opts DedupeOptions) (*DedupeReport, error) {
	report := &DedupeReport{
		DryRun:     opts.DryRun,
		Groups:     []DuplicateGroup{},
		Unassigned: []string{},
		Deleted:    []string{},
		Warnings:   []ConsistencyWarning{},
	}

	batches, err := s.batches.ListBatches(ctx, repository.BatchFilter{})
	if err != nil {
		return nil, storeErr("list batches", err)
	}
	known := make(map[string]struct{}, len(batches))
	for _, b := range batches {
		known[b.ID] = struct{}{}
	}

	scopeID, scoped := ids.ParseOptionalID(opts.BatchID)
	if scoped {
		if _, ok := known[scopeID]; !ok {
			return nil, &NotFoundError{Resource: "Batch", ID: scopeID}
		}
	}

	rows, err := s.loadVideos(ctx, scopeID, scoped)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(rows)
	sortVideos(rows)

	// Partition into per-batch scopes and orphans
	byBatch := map[string][]model.ClassroomVideo{}
	var batchOrder []string
	var orphans []model.ClassroomVideo
	var dangling []string
	for _, v := range rows {
		bID, ok := ids.FromPtr(v.BatchID)
		if ok {
			if _, exists := known[bID]; !exists {
				dangling = append(dangling, v.ID)
				if opts.DanglingAsOrphan {
					ok = false
				}
			}
		}
		if !ok {
			orphans = append(orphans, v)
			continue
		}
		if _, seen := byBatch[bID]; !seen {
			batchOrder = append(batchOrder, bID)
		}
		byBatch[bID] = append(byBatch[bID], v)
	}
	if len(dangling) > 0 {
		msg := "videos reference a batch that does not exist; losers among them are only unassigned"
		if opts.DanglingAsOrphan {
			msg = "videos reference a batch that does not exist; treated as orphans"
		}
		report.Warnings = append(report.Warnings, ConsistencyWarning{Kind: WarningDanglingVideoBatch, Message: msg, IDs: dangling})
	}

	// Batch phase
	unassigned := map[string]struct{}{}
	for _, bID := range batchOrder {
		for _, g := range batchGroups(bID, byBatch[bID]) {
			report.Groups = append(report.Groups, g)
			for _, id := range g.LoserIDs {
				unassigned[id] = struct{}{}
				report.Unassigned = append(report.Unassigned, id)
			}
		}
	}

	// Orphan phase runs on the state the batch phase leaves behind
	projected := append([]model.ClassroomVideo(nil), orphans...)
	for _, bID := range batchOrder {
		for _, v := range byBatch[bID] {
			if _, ok := unassigned[v.ID]; ok {
				v.BatchID = nil
				projected = append(projected, v)
			}
		}
	}
	sortVideos(projected)
	for _, g := range groupByContentID(projected) {
		if scoped && !touches(g, unassigned) {
			continue
		}
		g.Scope = ScopeOrphan
		g.Action = DedupeDelete
		report.Groups = append(report.Groups, g)
		report.Deleted = append(report.Deleted, g.LoserIDs...)
	}

	for _, g := range report.Groups {
		fields := []zap.Field{
			zap.String("scope", g.Scope),
			zap.String("batch_id", g.BatchID),
			zap.String("key", g.Key),
			zap.String("value", g.Value),
			zap.String("canonical_id", g.CanonicalID),
			zap.Strings("losers", g.LoserIDs),
			zap.String("action", string(g.Action)),
			zap.Bool("dry_run", opts.DryRun),
		}
		if opts.Verbose {
			s.log.Info("duplicate group", fields...)
		} else {
			s.log.Debug("duplicate group", fields...)
		}
	}

	if len(report.Groups) == 0 {
		report.Warnings = append(report.Warnings, ConsistencyWarning{
			Kind:    WarningNoDuplicates,
			Message: fmt.Sprintf("no duplicate videos found among %d scanned", report.Scanned),
		})
	}

	if !opts.DryRun {
		if err := s.resolve(ctx, report); err != nil {
			return report, err
		}
	}

	s.log.Info("video dedupe complete",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("scanned", report.Scanned),
		zap.Int("groups", len(report.Groups)),
		zap.Int("unassigned", len(report.Unassigned)),
		zap.Int("deleted", len(report.Deleted)),
	)
	return report, nil
}

func (s *VideoDedupeService) loadVideos(ctx context.Context, scopeID string, scoped bool) ([]model.ClassroomVideo, error) {
	if !scoped {
		rows, err := s.videos.ListVideos(ctx, repository.VideoFilter{})
		if err != nil {
			return nil, storeErr("list videos", err)
		}
		return rows, nil
	}
	inBatch, err := s.videos.ListVideos(ctx, repository.VideoFilter{BatchID: &scopeID})
	if err != nil {
		return nil, storeErr("list videos of batch "+scopeID, err)
	}
	orphans, err := s.videos.ListVideos(ctx, repository.VideoFilter{Unassigned: true})
	if err != nil {
		return nil, storeErr("list unassigned videos", err)
	}
	return append(inBatch, orphans...), nil
}

// resolve unassigns before it deletes. A pass interrupted in between leaves
// extra orphans that the next pass collapses.
func (s *VideoDedupeService) resolve(ctx context.Context, report *DedupeReport) error {
	if len(report.Unassigned) > 0 {
		n, err := s.videos.UnassignVideos(ctx, report.Unassigned)
		if err != nil {
			return storeErr("unassign duplicate videos", err)
		}
		metrics.DedupeActions.WithLabelValues(string(DedupeUnassign)).Add(float64(n))
	}
	if len(report.Deleted) > 0 {
		n, err := s.videos.DeleteVideos(ctx, report.Deleted)
		if err != nil {
			return storeErr("delete duplicate orphan videos", err)
		}
		metrics.DedupeActions.WithLabelValues(string(DedupeDelete)).Add(float64(n))
	}
	return nil
}

// batchGroups applies the content id key, then the title/date key to the rows
// that did not lose under the first key.
func batchGroups(batchID string, rows []model.ClassroomVideo) []DuplicateGroup {
	groups := groupByContentID(rows)
	lost := map[string]struct{}{}
	for i := range groups {
		groups[i].Scope = ScopeBatch
		groups[i].BatchID = batchID
		groups[i].Action = DedupeUnassign
		for _, id := range groups[i].LoserIDs {
			lost[id] = struct{}{}
		}
	}

	remaining := make([]model.ClassroomVideo, 0, len(rows))
	for _, v := range rows {
		if _, ok := lost[v.ID]; !ok {
			remaining = append(remaining, v)
		}
	}
	for _, g := range groupBy(remaining, KeyTitleDate, titleDateKey) {
		g.Scope = ScopeBatch
		g.BatchID = batchID
		g.Action = DedupeUnassign
		groups = append(groups, g)
	}
	return groups
}

func groupByContentID(rows []model.ClassroomVideo) []DuplicateGroup {
	return groupBy(rows, KeyContentID, func(v model.ClassroomVideo) string {
		return strings.TrimSpace(v.ExternalContentID)
	})
}

// groupBy buckets rows (already in canonical order) by key, skipping empty
// keys. The first row of each bucket is canonical.
func groupBy(rows []model.ClassroomVideo, keyName string, key func(model.ClassroomVideo) string) []DuplicateGroup {
	buckets := map[string][]string{}
	var order []string
	for _, v := range rows {
		k := key(v)
		if k == "" {
			continue
		}
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], v.ID)
	}

	var groups []DuplicateGroup
	for _, k := range order {
		members := buckets[k]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, DuplicateGroup{
			Key:         keyName,
			Value:       k,
			CanonicalID: members[0],
			LoserIDs:    append([]string(nil), members[1:]...),
		})
	}
	return groups
}

func titleDateKey(v model.ClassroomVideo) string {
	title := NormalizeTitle(v.Title)
	if title == "" {
		return ""
	}
	return title + "|" + strings.TrimSpace(v.Date)
}

// NormalizeTitle lower-cases, collapses whitespace and strips trailing periods.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.Join(strings.Fields(title), " "))
	for {
		trimmed := strings.TrimSpace(strings.TrimRight(t, "."))
		if trimmed == t {
			return t
		}
		t = trimmed
	}
}

// sortVideos orders rows oldest first, ties broken by id.
func sortVideos(rows []model.ClassroomVideo) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
}

func touches(g DuplicateGroup, set map[string]struct{}) bool {
	if _, ok := set[g.CanonicalID]; ok {
		return true
	}
	for _, id := range g.LoserIDs {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
