package services

import (
	"github.com/google/uuid"
)

// Coordination-store key layout. Everything the engine writes to the store
// lives under the autoresp: prefix so operators can inspect or flush it in
// one place.
func claimKey(tenantID uuid.UUID, messageID string) string {
	return "autoresp:claim:" + tenantID.String() + ":" + messageID
}

func mutexKey(tenantID uuid.UUID, sender string) string {
	return "autoresp:lock:" + tenantID.String() + ":" + sender
}

func gateKey(tenantID uuid.UUID, sender string) string {
	return "autoresp:gate:" + tenantID.String() + ":" + sender
}
