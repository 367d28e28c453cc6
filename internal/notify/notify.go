package notify

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier delivers best-effort messages to a user. Delivery is
// fire-and-forget: an unreachable user is not an error and nothing in the
// engine blocks on it.
type Notifier interface {
	Notify(user uuid.UUID, message string)
}

// LogNotifier writes notifications to the application log. It is the
// fallback sink when no chat integration is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(user uuid.UUID, message string) {
	n.logger.Info("User notification",
		zap.String("user", user.String()),
		zap.String("message", message),
	)
}
