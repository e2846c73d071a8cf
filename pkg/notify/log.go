package notify

import (
	"sync"

	"github.com/fishdeas/fishdeas/pkg/observability"
)

// LogNotifier logs emails instead of sending them. Used in dev mode and
// in tests, where it also records what would have been sent.
type LogNotifier struct {
	logger *observability.Logger

	mu         sync.Mutex
	resetCodes map[string]string // email -> last code
	links      map[string]string // email -> last link
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{
		logger:     logger,
		resetCodes: make(map[string]string),
		links:      make(map[string]string),
	}
}

func (n *LogNotifier) SendVerification(email, link string) error {
	n.mu.Lock()
	n.links[email] = link
	n.mu.Unlock()

	n.logger.WithField("email", email).Info("verification link issued")
	return nil
}

func (n *LogNotifier) SendResetCode(email, code string) error {
	n.mu.Lock()
	n.resetCodes[email] = code
	n.mu.Unlock()

	n.logger.WithField("email", email).Info("reset code issued")
	return nil
}

// LastResetCode returns the last reset code recorded for email
func (n *LogNotifier) LastResetCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetCodes[email]
}

// LastVerificationLink returns the last verification link recorded for email
func (n *LogNotifier) LastVerificationLink(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[email]
}
