package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message is one chat-platform message in the durable message log.
// AutoResponseSent is tristate: nil means not yet decided, true means a
// greeting went out for it, false means an attempt failed and the row is
// waiting for the housekeeping reset.
type Message struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	PlatformMessageID string     `gorm:"uniqueIndex;not null;column:platform_message_id" json:"platform_message_id"`
	TenantID          uuid.UUID  `gorm:"type:uuid;not null;index:idx_message_tenant_sender" json:"tenant_id"`
	Tenant            *Tenant    `gorm:"constraint:OnDelete:CASCADE;foreignKey:TenantID;references:ID" json:"tenant,omitempty"`
	Sender            string     `gorm:"not null;index:idx_message_tenant_sender" json:"sender"`
	Direction         string     `gorm:"not null;index" json:"direction"`
	Text              *string    `gorm:"type:text" json:"text,omitempty"`
	ReceivedAt        time.Time  `gorm:"not null;index" json:"received_at"`
	AutoResponseSent  *bool      `gorm:"column:auto_response_sent;index" json:"auto_response_sent,omitempty"`
	ResponseID        *string    `gorm:"column:response_id" json:"response_id,omitempty"`
	RespondedAt       *time.Time `gorm:"column:responded_at" json:"responded_at,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Message) TableName() string { return "message" }
