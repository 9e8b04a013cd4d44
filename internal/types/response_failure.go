package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FailureKindCredential = "credential_expired"
	FailureKindTransient  = "transient"
)

// ResponseFailure is the operator-facing record of a dispatch that did not
// go out. Credential failures are the alertable kind; transient ones are
// retried by the sweep after the cool-down.
type ResponseFailure struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant     *Tenant        `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	Sender     string         `gorm:"not null;index" json:"sender"`
	Kind       string         `gorm:"not null;index" json:"kind"`
	MessageIDs datatypes.JSON `gorm:"type:jsonb;column:message_ids" json:"message_ids"`
	ErrorText  string         `gorm:"type:text;column:error_text" json:"error_text"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (ResponseFailure) TableName() string { return "response_failure" }
