package email

import (
	"context"
)

// Service sends plain text email. Implementations must honour ctx.
type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}
