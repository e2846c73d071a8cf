// Package notify delivers out-of-band account emails: the verification
// link sent at registration and the password-reset PIN. Delivery is a
// fire-and-forget side effect; callers never roll back committed state
// when a send fails.
package notify

// Notifier sends account emails to a single recipient
type Notifier interface {
	// SendVerification delivers the email-verification link
	SendVerification(email, link string) error
	// SendResetCode delivers the password-reset PIN
	SendResetCode(email, code string) error
}
