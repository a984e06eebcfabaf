package legacy

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestFromBSON(t *testing.T) {
	oid := bson.NewObjectID()
	teacher := bson.NewObjectID()
	created := time.Date(2023, 11, 1, 8, 0, 0, 0, time.UTC)

	doc := FromBSON(bson.M{
		"_id":       oid,
		"name":      "Cohort A",
		"teacherId": teacher,
		"students":  bson.A{"s1", bson.NewObjectIDFromTimestamp(created)},
		"createdAt": bson.NewDateTimeFromTime(created),
		"schedule":  bson.D{{Key: "time", Value: "10:00"}},
	})

	b := BatchFromDocument("", doc)
	if b.ID != oid.Hex() {
		t.Errorf("ID = %q, want %q", b.ID, oid.Hex())
	}
	if b.TeacherID != teacher.Hex() {
		t.Errorf("TeacherID = %q, want %q", b.TeacherID, teacher.Hex())
	}
	if len(b.Students) != 2 || b.Students[0] != "s1" {
		t.Errorf("Students = %v", b.Students)
	}

	ts, ok := doc.Time("createdAt")
	if !ok || !ts.Equal(created) {
		t.Errorf("createdAt = %v, %v", ts, ok)
	}
	sched, ok := doc["schedule"].(map[string]any)
	if !ok || sched["time"] != "10:00" {
		t.Errorf("schedule = %#v", doc["schedule"])
	}
}
