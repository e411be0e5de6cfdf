package messages

import "time"

// Change actions, for the audit trail and for debugging consumers.
const (
	ActionCheckIn      = "check_in"
	ActionStatusUpdate = "status_update"
	ActionEdit         = "edit"
	ActionAdd          = "add"
	ActionDelete       = "delete"
	ActionBulkReplace  = "bulk_replace"
	ActionReset        = "reset"
	ActionMasterChange = "master_change"
)

// RosterChanged is published after every committed roster mutation.
// It carries no record data: subscribers reload the full station snapshot,
// so their state stays a pure function of the store. Seq is the store's
// commit sequence and lets subscribers drop stale notifications.
type RosterChanged struct {
	StationID string    `json:"station_id"`
	Seq       uint64    `json:"seq"`
	Action    string    `json:"action,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
