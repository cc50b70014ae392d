package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnalyticalRecord is one canonical row of the dashboard table. Rows are
// created in bulk by the ingestion pipeline and owned by their job: deleting
// a job deletes its records first.
type AnalyticalRecord struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	ReportingDay    *time.Time `gorm:"column:reporting_day;type:date;index" json:"reporting_day"`
	ReportMonth     *string    `gorm:"column:report_month;type:varchar(7);index" json:"report_month"`
	Customer        *string    `gorm:"column:customer;type:varchar(255);index" json:"customer"`
	Category        *string    `gorm:"column:category;type:varchar(255);index" json:"category"`
	Product         *string    `gorm:"column:product;type:varchar(255);index" json:"product"`
	Status          *string    `gorm:"column:status;type:varchar(50);index" json:"status"`
	CurrentStatus   *string    `gorm:"column:current_status;type:varchar(50)" json:"current_status"`
	Quantity        int        `gorm:"column:quantity;not null;default:0" json:"quantity"`
	RootCause       *string    `gorm:"column:root_cause;type:varchar(500)" json:"root_cause"`
	ImprovementPlan *string    `gorm:"column:improvement_plan;type:text" json:"improvement_plan"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (AnalyticalRecord) TableName() string { return "analytical_record" }

func (r *AnalyticalRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
