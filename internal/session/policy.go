package session

import "time"

// Provider close codes with terminal meaning. Every other code, including an
// absent one, is treated as transient: unknown causes favour availability
// over early termination.
const (
	CloseCodeLoggedOut  = 401
	CloseCodeBadSession = 500
)

type CloseAction int

const (
	ActionRetry CloseAction = iota
	ActionTerminalLogout
	ActionTerminalBadSession
)

// CloseDecision is the outcome of classifying a disconnect cause.
type CloseDecision struct {
	Action CloseAction
	Delay  time.Duration // retry delay, ActionRetry only
	Reason string        // DISCONNECTED reason, terminal actions only
}

// PurgeCredentials reports whether stored credentials must be wiped before
// any further connection attempt.
func (d CloseDecision) PurgeCredentials() bool {
	return d.Action != ActionRetry
}

// ClassifyClose maps a provider close code to a reconnect decision.
func ClassifyClose(code int, retryDelay time.Duration) CloseDecision {
	switch code {
	case CloseCodeLoggedOut:
		return CloseDecision{Action: ActionTerminalLogout, Reason: "LOGGED_OUT"}
	case CloseCodeBadSession:
		return CloseDecision{Action: ActionTerminalBadSession, Reason: "BAD_SESSION"}
	default:
		return CloseDecision{Action: ActionRetry, Delay: retryDelay}
	}
}
