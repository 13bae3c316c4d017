package port

import (
	"context"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
)

// TerminalNotifier informs the job owner of a terminal outcome. A failure to
// resolve the owner's address skips the notification silently; a failure to
// send propagates.
type TerminalNotifier interface {
	NotifyTerminal(ctx context.Context, job entity.Job, knownEmail string) error
}
