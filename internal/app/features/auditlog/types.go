// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/sheltrhq/sheltr/internal/app/store/audit"
)

// listItem is one event as returned to the account owner. The raw user
// agent is left out.
type listItem struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	IP            string            `json:"ip,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// listResponse is the JSON body of GET /account/activity.
type listResponse struct {
	Events []listItem `json:"events"`
	// Before is the cursor for the next (older) page; empty on the last page.
	Before string `json:"before,omitempty"`
}

func toItem(ev audit.Event) listItem {
	return listItem{
		ID:            ev.ID.Hex(),
		Timestamp:     ev.Timestamp,
		Category:      ev.Category,
		EventType:     ev.EventType,
		IP:            ev.IP,
		Success:       ev.Success,
		FailureReason: ev.FailureReason,
		Details:       ev.Details,
	}
}

// categories are the accepted values of the "category" filter.
var categories = map[string]bool{
	audit.CategoryAuth:    true,
	audit.CategoryAccount: true,
}
