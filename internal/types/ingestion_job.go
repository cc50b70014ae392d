package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusPending = "pending"
	JobStatusReady   = "ready"
	JobStatusError   = "error"

	TargetAnalytical  = "analytical"
	TargetConsumption = "consumption"
)

// IngestionJob tracks one uploaded file through its lifecycle.
// Status is one-shot: pending -> ready | error, never out of a terminal state.
type IngestionJob struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name         string         `gorm:"column:name;not null" json:"name"`
	FileType     string         `gorm:"column:file_type;not null" json:"file_type"`
	FilePath     string         `gorm:"column:file_path;not null" json:"-"`
	FileSize     int64          `gorm:"column:file_size" json:"file_size"`
	TargetKind   string         `gorm:"column:target_kind;not null;default:'analytical'" json:"target_kind"`
	Status       string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	RowCount     int            `gorm:"column:row_count" json:"row_count"`
	ColumnCount  int            `gorm:"column:column_count" json:"column_count"`
	ColumnsMeta  datatypes.JSON `gorm:"column:columns_meta;type:jsonb" json:"columns"`
	ErrorMessage string         `gorm:"column:error_message" json:"error_message,omitempty"`
	LockedAt     *time.Time     `gorm:"column:locked_at" json:"-"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (IngestionJob) TableName() string { return "ingestion_job" }

// BeforeCreate assigns the ID client-side so the sqlite dev driver works
// without uuid-ossp.
func (j *IngestionJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
