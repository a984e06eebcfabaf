package legacy

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"github.com/sahilchouksey/cohort-lms/utils/videolink"
)

// Document is a raw legacy record. Values are plain Go types: string,
// float64/int, bool, time.Time, []any and map[string]any.
type Document map[string]any

// Field aliases seen across legacy schema revisions, preferred first.
var (
	batchNameKeys   = []string{"name", "batchName", "batch_name", "title"}
	batchCourseKeys = []string{"course", "courseName", "course_name", "courseId"}
	teacherIDKeys   = []string{"teacherId", "teacher_id", "teacher", "instructorId", "mentorId"}
	teacherNameKeys = []string{"teacherName", "teacher_name", "instructorName"}
	studentsKeys    = []string{"students", "studentIds", "student_ids", "members"}
	userNameKeys    = []string{"name", "displayName", "fullName", "full_name"}
	emailKeys       = []string{"email", "emailAddress"}
	roleKeys        = []string{"role", "userRole", "type"}
	batchRefKeys    = []string{"batchId", "batch_id", "batch"}
	videoTitleKeys  = []string{"title", "name", "topic"}
	dateKeys        = []string{"date", "classDate", "lectureDate", "scheduledAt"}
	videoSourceKeys = []string{"videoSource", "video_source", "source", "type"}
	videoURLKeys    = []string{"videoUrl", "video_url", "url", "link", "embed"}
	contentIDKeys   = []string{"externalContentId", "contentId", "youtubeId", "videoId", "zoomRecordingId", "driveFileId"}
	createdAtKeys   = []string{"createdAt", "created_at", "uploadedAt", "timestamp"}
	documentIDKeys  = []string{"_id", "id"}
)

// BatchFromDocument maps a legacy batch document. id is the document id.
func BatchFromDocument(id string, doc Document) Batch {
	return Batch{
		ID:          docID(id, doc),
		Name:        strings.TrimSpace(doc.String(batchNameKeys...)),
		Course:      strings.TrimSpace(doc.String(batchCourseKeys...)),
		TeacherID:   refID(doc.String(teacherIDKeys...)),
		TeacherName: strings.TrimSpace(doc.String(teacherNameKeys...)),
		Students:    doc.IDList(studentsKeys...),
	}
}

// UserFromDocument maps a legacy user document.
func UserFromDocument(id string, doc Document) User {
	return User{
		ID:      docID(id, doc),
		Name:    strings.TrimSpace(doc.String(userNameKeys...)),
		Email:   strings.ToLower(strings.TrimSpace(doc.String(emailKeys...))),
		Role:    strings.ToLower(strings.TrimSpace(doc.String(roleKeys...))),
		BatchID: refID(doc.String(batchRefKeys...)),
		Course:  strings.TrimSpace(doc.String(batchCourseKeys...)),
	}
}

// VideoFromDocument maps a legacy classroom video document.
func VideoFromDocument(id string, doc Document) Video {
	v := Video{
		ID:                docID(id, doc),
		Title:             strings.TrimSpace(doc.String(videoTitleKeys...)),
		Course:            strings.TrimSpace(doc.String(batchCourseKeys...)),
		BatchID:           refID(doc.String(batchRefKeys...)),
		VideoSource:       strings.ToLower(strings.TrimSpace(doc.String(videoSourceKeys...))),
		VideoURL:          strings.TrimSpace(doc.String(videoURLKeys...)),
		ExternalContentID: strings.TrimSpace(doc.String(contentIDKeys...)),
	}
	if t, ok := doc.Time(createdAtKeys...); ok {
		v.CreatedAt = t
	}
	v.Date = doc.Date(dateKeys...)
	if v.ExternalContentID == "" {
		v.ExternalContentID = videolink.ExtractContentID(v.VideoSource, v.VideoURL)
	}
	return v
}

func docID(id string, doc Document) string {
	if parsed, ok := ids.ParseOptionalID(id); ok {
		return parsed
	}
	return refID(doc.String(documentIDKeys...))
}

// refID normalizes a reference field. Firestore exports write references as
// full paths ("batches/abc"); only the last segment is the id.
func refID(raw string) string {
	id, ok := ids.ParseOptionalID(raw)
	if !ok {
		return ""
	}
	if i := strings.LastIndex(id, "/"); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

func (d Document) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := d[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first present key rendered as text.
func (d Document) String(keys ...string) string {
	v, ok := d.lookup(keys...)
	if !ok {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case map[string]any:
		// reference objects: {"id": "..."} or {"path": "batches/..."}
		for _, k := range []string{"id", "_id", "path"} {
			if inner, ok := t[k]; ok {
				return stringify(inner)
			}
		}
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

// IDList returns the first present key as a de-duplicated id list. Arrays,
// comma separated strings and {id: true} maps are accepted.
func (d Document) IDList(keys ...string) []string {
	v, ok := d.lookup(keys...)
	if !ok {
		return []string{}
	}
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			raw = append(raw, refID(stringify(item)))
		}
	case []string:
		for _, item := range t {
			raw = append(raw, refID(item))
		}
	case string:
		raw = ids.SplitCSV(t)
	case map[string]any:
		for k, member := range t {
			if b, isBool := member.(bool); isBool && !b {
				continue
			}
			raw = append(raw, k)
		}
	}
	out, _ := ids.ParseList(raw)
	if out == nil {
		out = []string{}
	}
	if _, isMap := v.(map[string]any); isMap {
		sort.Strings(out)
	}
	return out
}

// Time returns the first present key as a timestamp. RFC3339 strings, unix
// seconds or milliseconds, and Firestore {_seconds, _nanoseconds} objects are
// accepted.
func (d Document) Time(keys ...string) (time.Time, bool) {
	v, ok := d.lookup(keys...)
	if !ok {
		return time.Time{}, false
	}
	return toTime(v)
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTime(n), true
		}
	case float64:
		return unixTime(int64(t)), true
	case int64:
		return unixTime(t), true
	case int32:
		return unixTime(int64(t)), true
	case int:
		return unixTime(int64(t)), true
	case map[string]any:
		secs, ok := numberField(t, "_seconds", "seconds")
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := numberField(t, "_nanoseconds", "nanoseconds")
		return time.Unix(secs, nanos).UTC(), true
	}
	return time.Time{}, false
}

// unixTime reads values too large to be seconds as milliseconds.
func unixTime(n int64) time.Time {
	if n > 1e10 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func numberField(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			return int64(n), true
		case int64:
			return n, true
		case int32:
			return int64(n), true
		case int:
			return int64(n), true
		}
	}
	return 0, false
}

// Date returns the first present key as a calendar date (YYYY-MM-DD).
func (d Document) Date(keys ...string) string {
	v, ok := d.lookup(keys...)
	if !ok {
		return ""
	}
	if s, isString := v.(string); isString {
		s = strings.TrimSpace(s)
		if len(s) >= 10 {
			if _, err := time.Parse("2006-01-02", s[:10]); err == nil {
				return s[:10]
			}
		}
	}
	if t, ok := toTime(v); ok {
		return t.Format("2006-01-02")
	}
	return ""
}
