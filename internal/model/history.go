package model

import (
	"time"

	"gorm.io/gorm"
)

type History struct {
	gorm.Model
	RecordID     string  `gorm:"uniqueIndex;not null"`
	Outcome      Outcome `gorm:"index;not null"`
	SrcPath      string  `gorm:"not null"`
	DstPath      string
	Verification Verification `gorm:"not null"`
	Attempts     int
	Size         int64
	DurationMs   int64
	Reason       Reason
	ErrMsg       string
	CopiedAt     time.Time `gorm:"index;not null"`
}

func NewHistory(r CopyRecord) History {
	return History{
		RecordID:     r.ID,
		Outcome:      r.Outcome,
		SrcPath:      r.SourcePath,
		DstPath:      r.DestPath,
		Verification: r.Verification,
		Attempts:     r.Attempts,
		Size:         r.Size,
		DurationMs:   r.Duration.Milliseconds(),
		Reason:       r.Reason,
		ErrMsg:       r.Error,
		CopiedAt:     r.Timestamp,
	}
}
