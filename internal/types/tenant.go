package types

import (
	"time"

	"github.com/google/uuid"
)

type Tenant struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DisplayName         string    `gorm:"not null;column:display_name" json:"display_name"`
	AutoResponseEnabled bool      `gorm:"not null;default:true;column:auto_response_enabled" json:"auto_response_enabled"`
	GreetingTemplate    *string   `gorm:"type:text;column:greeting_template" json:"greeting_template,omitempty"`
	Timezone            string    `gorm:"not null;default:'UTC'" json:"timezone"`
	CreatedAt           time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenant" }
