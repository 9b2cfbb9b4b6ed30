package http

import (
	"github.com/go-recovery-api/internal/application/identity"
	"github.com/go-recovery-api/internal/application/recovery"
	"github.com/go-recovery-api/internal/transport/http/handler"
)

// Deps holds the application services and readiness checks the router serves.
type Deps struct {
	Recovery recovery.Service
	Identity identity.Service
	// Checks are pinged by /health-check/ready, keyed by a display name.
	Checks map[string]handler.Pinger
}
