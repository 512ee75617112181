package interfaces

import (
	"context"

	"social_automation/domain/entities"
)

// CredentialStore loads per-platform authentication material
type CredentialStore interface {
	// LoadCredentials returns the record for platform or an AuthMissing error
	LoadCredentials(ctx context.Context, platform entities.Platform) (entities.CredentialRecord, error)

	// Invalidate drops any cached read for platform
	Invalidate(platform entities.Platform)
}
