package models

// Roster statuses are stored verbatim; historical data may contain nothing else.
const (
	StatusAwaiting         = "Awaiting"
	StatusCheckedIn        = "Checked In"
	StatusCheckedInNoBadge = "Checked In NO BADGE"
	StatusOnRescue         = "On Rescue"
)

// IsCheckedIn reports whether a status counts as a completed check-in
// (both the badge and the no-badge variant).
func IsCheckedIn(status string) bool {
	return status == StatusCheckedIn || status == StatusCheckedInNoBadge
}

// BadgeUnknown is the display placeholder for roster entries whose badge
// has not been recorded yet.
const BadgeUnknown = "N/A"

// BadgeNeedsUpdate marks master entries auto-created during a bulk roster
// replace; an operator has to fill in the real badge later.
const BadgeNeedsUpdate = "NEEDS UPDATE"

// DriverRecord is one row of a station's daily roster.
type DriverRecord struct {
	ID            string `json:"id"`
	StationID     string `json:"stationId"`
	TransporterID string `json:"transporterId"`
	BadgeID       string `json:"badgeId"`
	Name          string `json:"name"`
	CompanyName   string `json:"companyName"`
	StartTime     string `json:"startTime"` // "HH:MM"
	Status        string `json:"status"`
	CheckInTime   string `json:"checkInTime,omitempty"` // "HH:MM:SS", set on transition into a checked-in status
}

// MasterDriver is one row of a station's permanent driver registry.
// At most one entry per transporter id within a station.
type MasterDriver struct {
	ID            string `json:"id"`
	StationID     string `json:"stationId"`
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	BadgeID       string `json:"badgeId"`
	CompanyName   string `json:"companyName"`
	TransporterID string `json:"transporterId"`
}

type DriverCreateInput struct {
	Name        string `json:"name"`
	BadgeID     string `json:"badgeId"`
	StartTime   string `json:"startTime"`
	CompanyName string `json:"companyName"`
}

type MasterCreateInput struct {
	UserID        string `json:"userId"`
	Name          string `json:"name"`
	BadgeID       string `json:"badgeId"`
	CompanyName   string `json:"companyName"`
	TransporterID string `json:"transporterId"`
}

type AuditEntry struct {
	ID        uint64 `json:"id"`
	StationID string `json:"stationId"`
	User      string `json:"user"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"` // unix millis
}
