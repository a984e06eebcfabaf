package model

import (
	"time"

	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"gorm.io/gorm"
)

// VideoSource identifies where a classroom video is hosted
type VideoSource string

const (
	VideoSourceYouTubeURL VideoSource = "youtube-url" // Full watch/share URL
	VideoSourceYouTube    VideoSource = "youtube"     // Bare video id or embed snippet
	VideoSourceZoom       VideoSource = "zoom"        // Cloud recording link
	VideoSourceDrive      VideoSource = "drive"       // Google Drive file
	VideoSourceFirebase   VideoSource = "firebase"    // Legacy storage upload
)

// VideoSources lists every accepted source
var VideoSources = []VideoSource{VideoSourceYouTubeURL, VideoSourceYouTube, VideoSourceZoom, VideoSourceDrive, VideoSourceFirebase}

// ClassroomVideo holds lecture/recording metadata for a course and optionally a batch
type ClassroomVideo struct {
	ID                string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
	Title             string         `gorm:"not null" json:"title"`
	Date              string         `gorm:"type:varchar(10);index" json:"date"` // YYYY-MM-DD
	Course            string         `gorm:"type:varchar(255)" json:"course"`
	BatchID           *string        `gorm:"type:varchar(64);index" json:"batch_id"`
	VideoSource       VideoSource    `gorm:"type:varchar(20);not null" json:"video_source"`
	VideoURL          string         `gorm:"type:text" json:"video_url"`
	ExternalContentID string         `gorm:"type:varchar(255);index" json:"external_content_id"` // Empty when unknown
	LegacyID          *string        `gorm:"type:varchar(128);index" json:"legacy_id,omitempty"`
}

// TableName specifies the table name for ClassroomVideo
func (ClassroomVideo) TableName() string {
	return "classroom_videos"
}

// BeforeCreate assigns an id
func (v *ClassroomVideo) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = ids.New()
	}
	return nil
}

// ValidVideoSource reports whether s is a known source
func ValidVideoSource(s string) bool {
	for _, src := range VideoSources {
		if string(src) == s {
			return true
		}
	}
	return false
}
