package core

import (
	"fmt"
	"time"
)

// Engine defaults.
const (
	DefaultMaxIterations        = 5
	DefaultInstructionTimeout   = 300 * time.Second
	DefaultClarificationTimeout = 300 * time.Second
	DefaultDeliveryTimeout      = 10 * time.Second

	// ManagerUserID is the reasoning identity used for ledger extraction
	// and the semantic alignment fallback.
	ManagerUserID = "__conversation_manager__"

	// SummaryMessageCount is how many trailing messages a summary shows.
	SummaryMessageCount = 5
	// SummaryPreviewLength truncates message previews in summaries.
	SummaryPreviewLength = 100
)

// FormatTimeout renders a wait length the way owners are told about it:
// whole minutes as "N minute(s)", anything else in seconds.
func FormatTimeout(d time.Duration) string {
	secs := int(d / time.Second)
	if secs >= 60 && secs%60 == 0 {
		mins := secs / 60
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	if d < time.Second && d > 0 {
		return d.String()
	}
	return fmt.Sprintf("%d seconds", secs)
}
