package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/services/legacy"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"github.com/sahilchouksey/cohort-lms/utils/metrics"
	"go.uber.org/zap"
)

// MatchedBy names the rule that paired a legacy batch with a local one
type MatchedBy string

const (
	MatchedByNameTeacher MatchedBy = "name_teacher"
	MatchedByName        MatchedBy = "name"
)

// BatchRecord is the part of a batch reconciliation compares
type BatchRecord struct {
	ID        string
	Name      string
	Course    string
	TeacherID string
}

// BatchMatch pairs one legacy batch with a local batch
type BatchMatch struct {
	LegacyID  string    `json:"legacy_id"`
	LocalID   string    `json:"local_id"`
	Name      string    `json:"name"`
	MatchedBy MatchedBy `json:"matched_by"`
}

// TeacherLink pairs a legacy teacher id with a local user
type TeacherLink struct {
	LegacyID  string `json:"legacy_id"`
	LocalID   string `json:"local_id"`
	MatchedBy string `json:"matched_by"` // "legacy_id" or "email"
}

const (
	teacherByLegacyID = "legacy_id"
	teacherByEmail    = "email"
)

// VideoLink pairs a legacy classroom video with a local one
type VideoLink struct {
	LegacyID string `json:"legacy_id"`
	LocalID  string `json:"local_id"`
}

// ReconcileResult maps legacy batch ids to local batch ids. Every legacy id
// appears in exactly one of Mapping and Unmatched. Teacher and video links
// are filled by ReconciliationService.Run.
type ReconcileResult struct {
	LegacyTotal    int                  `json:"legacy_total"`
	Mapping        map[string]string    `json:"mapping"`
	Matches        []BatchMatch         `json:"matches"`
	Unmatched      []string             `json:"unmatched"`
	TeacherLinks   []TeacherLink        `json:"teacher_links"`
	VideoLinks     []VideoLink          `json:"video_links"`
	VideosUnlinked []string             `json:"videos_unlinked"`
	Warnings       []ConsistencyWarning `json:"warnings"`
}

type matchConfig struct {
	teachers map[string]string
}

// MatchOption tunes ReconcileBatches
type MatchOption func(*matchConfig)

// WithTeacherTranslation lets a legacy teacher id match a local user. The map
// is legacy teacher id -> local user id.
func WithTeacherTranslation(legacyToLocal map[string]string) MatchOption {
	return func(c *matchConfig) {
		c.teachers = legacyToLocal
	}
}

// ReconcileBatches pairs legacy batches with local ones: an exact
// (name, teacher) match first, then name alone. The first local batch in
// enumeration order wins. Legacy batches without a name stay unmatched.
func ReconcileBatches(legacyBatches, local []BatchRecord, opts ...MatchOption) ReconcileResult {
	cfg := matchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	result := ReconcileResult{
		Mapping:        map[string]string{},
		Matches:        []BatchMatch{},
		Unmatched:      []string{},
		TeacherLinks:   []TeacherLink{},
		VideoLinks:     []VideoLink{},
		VideosUnlinked: []string{},
		Warnings:       []ConsistencyWarning{},
	}
	seen := map[string]struct{}{}

	for _, old := range legacyBatches {
		oldID := strings.TrimSpace(old.ID)
		if _, dup := seen[oldID]; dup {
			continue
		}
		seen[oldID] = struct{}{}
		result.LegacyTotal++

		name := strings.TrimSpace(old.Name)
		if name == "" {
			result.Unmatched = append(result.Unmatched, oldID)
			continue
		}

		match, by := findMatch(name, strings.TrimSpace(old.TeacherID), local, cfg)
		if match == nil {
			result.Unmatched = append(result.Unmatched, oldID)
			continue
		}
		result.Mapping[oldID] = match.ID
		result.Matches = append(result.Matches, BatchMatch{
			LegacyID:  oldID,
			LocalID:   match.ID,
			Name:      name,
			MatchedBy: by,
		})
	}

	if len(result.Unmatched) > 0 {
		result.Warnings = append(result.Warnings, ConsistencyWarning{
			Kind:    WarningUnmatchedLegacyBatch,
			Message: fmt.Sprintf("%d of %d legacy batches have no local match", len(result.Unmatched), result.LegacyTotal),
			IDs:     result.Unmatched,
		})
	}
	return result
}

func findMatch(name, teacherID string, local []BatchRecord, cfg matchConfig) (*BatchRecord, MatchedBy) {
	if teacherID != "" {
		translated := cfg.teachers[teacherID]
		for i := range local {
			if strings.TrimSpace(local[i].Name) != name {
				continue
			}
			localTeacher := strings.TrimSpace(local[i].TeacherID)
			if localTeacher == "" {
				continue
			}
			if localTeacher == teacherID || (translated != "" && localTeacher == translated) {
				return &local[i], MatchedByNameTeacher
			}
		}
	}
	for i := range local {
		if strings.TrimSpace(local[i].Name) == name {
			return &local[i], MatchedByName
		}
	}
	return nil, ""
}

// ReconciliationService runs reconciliation against the legacy store and
// applies the resulting map to local references.
type ReconciliationService struct {
	legacy  legacy.Reader
	users   repository.UserRepository
	batches repository.BatchRepository
	videos  repository.VideoRepository
	roster  *RosterService
	log     *zap.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(reader legacy.Reader, store repository.Store, log *zap.Logger) *ReconciliationService {
	log = logger.OrNop(log)
	return &ReconciliationService{
		legacy:  reader,
		users:   store,
		batches: store,
		videos:  store,
		roster:  NewRosterService(store, store, log),
		log:     log,
	}
}

// Run reads both stores and returns the legacy -> local batch map together
// with teacher and video links. Any read failure aborts the pass; no partial
// map is returned.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconcileResult, error) {
	legacyBatches, err := s.legacy.ListBatches(ctx)
	if err != nil {
		return nil, storeErr("read legacy batches", err)
	}
	legacyUsers, err := s.legacy.ListUsers(ctx)
	if err != nil {
		return nil, storeErr("read legacy users", err)
	}
	legacyVideos, err := s.legacy.ListVideos(ctx)
	if err != nil {
		return nil, storeErr("read legacy videos", err)
	}
	localBatches, err := s.batches.ListBatches(ctx, repository.BatchFilter{})
	if err != nil {
		return nil, storeErr("list local batches", err)
	}

	oldRecords := make([]BatchRecord, 0, len(legacyBatches))
	var teacherIDs []string
	seenTeacher := map[string]struct{}{}
	for _, b := range legacyBatches {
		oldRecords = append(oldRecords, BatchRecord{ID: b.ID, Name: b.Name, Course: b.Course, TeacherID: b.TeacherID})
		teacherID := strings.TrimSpace(b.TeacherID)
		if teacherID == "" {
			continue
		}
		if _, ok := seenTeacher[teacherID]; !ok {
			seenTeacher[teacherID] = struct{}{}
			teacherIDs = append(teacherIDs, teacherID)
		}
	}
	newRecords := make([]BatchRecord, 0, len(localBatches))
	for _, b := range localBatches {
		newRecords = append(newRecords, BatchRecord{ID: b.ID, Name: b.Name, Course: b.Course, TeacherID: b.TeacherID})
	}

	teacherLinks, err := s.linkTeachers(ctx, teacherIDs, legacyUsers)
	if err != nil {
		return nil, err
	}
	translation := make(map[string]string, len(teacherLinks))
	for _, l := range teacherLinks {
		translation[l.LegacyID] = l.LocalID
	}

	result := ReconcileBatches(oldRecords, newRecords, WithTeacherTranslation(translation))
	result.TeacherLinks = teacherLinks

	if len(legacyVideos) > 0 {
		localVideos, err := s.videos.ListVideos(ctx, repository.VideoFilter{})
		if err != nil {
			return nil, storeErr("list local videos", err)
		}
		result.VideoLinks, result.VideosUnlinked = linkVideos(legacyVideos, localVideos, result.Mapping)
		if len(result.VideosUnlinked) > 0 {
			result.Warnings = append(result.Warnings, ConsistencyWarning{
				Kind:    WarningUnlinkedLegacyVideo,
				Message: fmt.Sprintf("%d legacy videos have no single local video with the same content id", len(result.VideosUnlinked)),
				IDs:     result.VideosUnlinked,
			})
		}
	}

	metrics.ReconcileOutcomes.WithLabelValues("matched").Add(float64(len(result.Mapping)))
	metrics.ReconcileOutcomes.WithLabelValues("unmatched").Add(float64(len(result.Unmatched)))
	metrics.ReconcileOutcomes.WithLabelValues("teacher_linked").Add(float64(len(result.TeacherLinks)))
	metrics.ReconcileOutcomes.WithLabelValues("video_linked").Add(float64(len(result.VideoLinks)))

	for _, m := range result.Matches {
		s.log.Debug("legacy batch matched",
			zap.String("legacy_id", m.LegacyID),
			zap.String("local_id", m.LocalID),
			zap.String("matched_by", string(m.MatchedBy)),
		)
	}
	s.log.Info("batch reconciliation complete",
		zap.Int("legacy", result.LegacyTotal),
		zap.Int("matched", len(result.Mapping)),
		zap.Int("unmatched", len(result.Unmatched)),
		zap.Int("teachers_linked", len(result.TeacherLinks)),
		zap.Int("videos_linked", len(result.VideoLinks)),
	)
	return &result, nil
}

// linkTeachers resolves legacy teacher ids to local users: first users that
// already carry the legacy id, then the legacy user's email. A local user is
// linked to at most one legacy id and a recorded legacy id is never replaced.
func (s *ReconciliationService) linkTeachers(ctx context.Context, teacherIDs []string, legacyUsers []legacy.User) ([]TeacherLink, error) {
	links := []TeacherLink{}
	if len(teacherIDs) == 0 {
		return links, nil
	}

	linked := map[string]struct{}{}
	claimed := map[string]struct{}{}
	migrated, err := s.users.FindUsers(ctx, repository.UserFilter{LegacyIDs: teacherIDs})
	if err != nil {
		return nil, storeErr("load migrated teachers", err)
	}
	for _, u := range migrated {
		legacyID, ok := ids.FromPtr(u.LegacyID)
		if !ok {
			continue
		}
		if _, dup := linked[legacyID]; dup {
			continue
		}
		linked[legacyID] = struct{}{}
		claimed[u.ID] = struct{}{}
		links = append(links, TeacherLink{LegacyID: legacyID, LocalID: u.ID, MatchedBy: teacherByLegacyID})
	}

	emails := make(map[string]string, len(legacyUsers))
	for _, u := range legacyUsers {
		email := model.NormalizeEmail(u.Email)
		if u.ID == "" || email == "" {
			continue
		}
		if _, ok := emails[u.ID]; !ok {
			emails[u.ID] = email
		}
	}

	for _, teacherID := range teacherIDs {
		if _, ok := linked[teacherID]; ok {
			continue
		}
		email := emails[teacherID]
		if email == "" {
			continue
		}
		u, err := s.users.GetUserByEmail(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr("look up teacher "+email, err)
		}
		if _, taken := claimed[u.ID]; taken {
			continue
		}
		if current, ok := ids.FromPtr(u.LegacyID); ok && current != teacherID {
			continue
		}
		linked[teacherID] = struct{}{}
		claimed[u.ID] = struct{}{}
		links = append(links, TeacherLink{LegacyID: teacherID, LocalID: u.ID, MatchedBy: teacherByEmail})
	}
	return links, nil
}

// linkVideos pairs legacy videos with local ones sharing ExternalContentID.
// Local videos already stamped with a legacy id keep that link. When several
// candidates remain, the one in the legacy video's batch (old or mapped id)
// wins; otherwise only a single candidate is linked.
func linkVideos(legacyVideos []legacy.Video, local []model.ClassroomVideo, batchMap map[string]string) ([]VideoLink, []string) {
	links := []VideoLink{}
	unlinked := []string{}

	recorded := map[string]string{}
	byContent := map[string][]int{}
	for i, v := range local {
		if legacyID, ok := ids.FromPtr(v.LegacyID); ok {
			if _, dup := recorded[legacyID]; !dup {
				recorded[legacyID] = v.ID
			}
			continue
		}
		if cid := strings.TrimSpace(v.ExternalContentID); cid != "" {
			byContent[cid] = append(byContent[cid], i)
		}
	}

	claimed := map[string]struct{}{}
	seen := map[string]struct{}{}
	for _, old := range legacyVideos {
		if old.ID == "" {
			continue
		}
		if _, dup := seen[old.ID]; dup {
			continue
		}
		seen[old.ID] = struct{}{}

		if localID, ok := recorded[old.ID]; ok {
			links = append(links, VideoLink{LegacyID: old.ID, LocalID: localID})
			continue
		}

		var candidates []int
		for _, i := range byContent[strings.TrimSpace(old.ExternalContentID)] {
			if _, taken := claimed[local[i].ID]; !taken {
				candidates = append(candidates, i)
			}
		}

		pick := -1
		if old.BatchID != "" {
			mapped := batchMap[old.BatchID]
			for _, i := range candidates {
				b, _ := ids.FromPtr(local[i].BatchID)
				if b != "" && (b == old.BatchID || b == mapped) {
					pick = i
					break
				}
			}
		}
		if pick < 0 && len(candidates) == 1 {
			pick = candidates[0]
		}
		if pick < 0 {
			unlinked = append(unlinked, old.ID)
			continue
		}
		claimed[local[pick].ID] = struct{}{}
		links = append(links, VideoLink{LegacyID: old.ID, LocalID: local[pick].ID})
	}
	return links, unlinked
}

// ApplyResult summarises a remap pass
type ApplyResult struct {
	UsersRepointed     int64                `json:"users_repointed"`
	VideosRepointed    int64                `json:"videos_repointed"`
	LegacyIDsRecorded  int                  `json:"legacy_ids_recorded"`
	TeacherIDsRecorded int                  `json:"teacher_ids_recorded"`
	VideoIDsRecorded   int                  `json:"video_ids_recorded"`
	Skipped            []string             `json:"skipped"`
	Rosters            []RosterResult       `json:"rosters"`
	Warnings           []ConsistencyWarning `json:"warnings"`
}

// Apply rewrites user and video batch pointers that still carry a legacy
// batch id, records legacy ids on local batches, teachers and videos, then
// rebuilds the affected rosters. A local batch records the first legacy id
// mapped onto it and keeps an id recorded earlier. Running it again changes
// nothing.
func (s *ReconciliationService) Apply(ctx context.Context, result *ReconcileResult) (*ApplyResult, error) {
	out := &ApplyResult{Skipped: []string{}, Rosters: []RosterResult{}, Warnings: []ConsistencyWarning{}}
	if result == nil {
		return out, nil
	}

	touched, err := s.applyBatches(ctx, result.Matches, out)
	if err != nil {
		return out, err
	}
	if err := s.applyTeacherLinks(ctx, result.TeacherLinks, out); err != nil {
		return out, err
	}
	if err := s.applyVideoLinks(ctx, result.VideoLinks, out); err != nil {
		return out, err
	}

	for _, id := range touched {
		res, err := s.roster.RebuildRoster(ctx, id)
		if err != nil {
			return out, err
		}
		if res.Changed {
			out.Rosters = append(out.Rosters, *res)
		}
	}
	return out, nil
}

func (s *ReconciliationService) applyBatches(ctx context.Context, matches []BatchMatch, out *ApplyResult) ([]string, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	localBatches, err := s.batches.ListBatches(ctx, repository.BatchFilter{})
	if err != nil {
		return nil, storeErr("list local batches", err)
	}
	// local batch id -> the legacy id it records
	owner := make(map[string]string, len(localBatches))
	for i := range localBatches {
		owner[localBatches[i].ID] = ""
		if legacyID, ok := ids.FromPtr(localBatches[i].LegacyID); ok {
			owner[localBatches[i].ID] = legacyID
		}
	}

	var touched, ambiguous []string
	touchedSet := map[string]struct{}{}
	for _, m := range matches {
		if m.LegacyID == m.LocalID {
			continue
		}
		// a legacy id that is also a live local id cannot be told apart
		if _, clash := owner[m.LegacyID]; clash {
			out.Skipped = append(out.Skipped, m.LegacyID)
			continue
		}

		users, err := s.users.RepointUsersBatch(ctx, m.LegacyID, m.LocalID)
		if err != nil {
			return touched, storeErr("repoint users of legacy batch "+m.LegacyID, err)
		}
		videos, err := s.videos.RepointVideosBatch(ctx, m.LegacyID, m.LocalID)
		if err != nil {
			return touched, storeErr("repoint videos of legacy batch "+m.LegacyID, err)
		}
		out.UsersRepointed += users
		out.VideosRepointed += videos

		switch owner[m.LocalID] {
		case m.LegacyID:
		case "":
			if err := s.batches.SetBatchLegacyID(ctx, m.LocalID, m.LegacyID); err != nil {
				return touched, lookupErr("Batch", m.LocalID, "record legacy id on batch "+m.LocalID, err)
			}
			owner[m.LocalID] = m.LegacyID
			out.LegacyIDsRecorded++
		default:
			ambiguous = append(ambiguous, m.LegacyID)
		}

		if _, ok := touchedSet[m.LocalID]; !ok {
			touchedSet[m.LocalID] = struct{}{}
			touched = append(touched, m.LocalID)
		}
		s.log.Info("legacy batch remapped",
			zap.String("legacy_id", m.LegacyID),
			zap.String("local_id", m.LocalID),
			zap.Int64("users", users),
			zap.Int64("videos", videos),
		)
	}

	if len(out.Skipped) > 0 {
		out.Warnings = append(out.Warnings, ConsistencyWarning{
			Kind:    WarningLegacyIDClash,
			Message: "legacy ids that are also local batch ids were not remapped",
			IDs:     out.Skipped,
		})
	}
	if len(ambiguous) > 0 {
		out.Warnings = append(out.Warnings, ConsistencyWarning{
			Kind:    WarningAmbiguousLegacyBatch,
			Message: "legacy batches mapped onto a local batch that already records another legacy id; pointers were repointed, ids not recorded",
			IDs:     ambiguous,
		})
	}
	return touched, nil
}

func (s *ReconciliationService) applyTeacherLinks(ctx context.Context, links []TeacherLink, out *ApplyResult) error {
	if len(links) == 0 {
		return nil
	}
	userIDs := make([]string, 0, len(links))
	for _, l := range links {
		userIDs = append(userIDs, l.LocalID)
	}
	users, err := s.users.FindUsers(ctx, repository.UserFilter{IDs: userIDs})
	if err != nil {
		return storeErr("load linked teachers", err)
	}
	current := make(map[string]*string, len(users))
	for i := range users {
		current[users[i].ID] = users[i].LegacyID
	}

	for _, l := range links {
		recorded, exists := current[l.LocalID]
		if !exists {
			continue
		}
		if _, ok := ids.FromPtr(recorded); ok {
			continue
		}
		if err := s.users.SetUserLegacyID(ctx, l.LocalID, l.LegacyID); err != nil {
			return lookupErr("User", l.LocalID, "record legacy id on user "+l.LocalID, err)
		}
		out.TeacherIDsRecorded++
	}
	return nil
}

func (s *ReconciliationService) applyVideoLinks(ctx context.Context, links []VideoLink, out *ApplyResult) error {
	if len(links) == 0 {
		return nil
	}
	videos, err := s.videos.ListVideos(ctx, repository.VideoFilter{})
	if err != nil {
		return storeErr("list local videos", err)
	}
	current := make(map[string]*string, len(videos))
	for i := range videos {
		current[videos[i].ID] = videos[i].LegacyID
	}

	for _, l := range links {
		recorded, exists := current[l.LocalID]
		if !exists {
			continue
		}
		if _, ok := ids.FromPtr(recorded); ok {
			continue
		}
		if err := s.videos.SetVideoLegacyID(ctx, l.LocalID, l.LegacyID); err != nil {
			return lookupErr("ClassroomVideo", l.LocalID, "record legacy id on video "+l.LocalID, err)
		}
		out.VideoIDsRecorded++
	}
	return nil
}
