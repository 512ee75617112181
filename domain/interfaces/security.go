package interfaces

import (
	"context"

	"social_automation/domain/entities"
)

// Validator checks caller input before any browser session is opened
type Validator interface {
	// Validate returns a ValidationError describing the first bad parameter
	Validate(ctx context.Context, req entities.Request) error
}
