package models

const (
	RoleDeveloper = "Developer"
	RoleL4Plus    = "L4+"
	RoleL3        = "L3"
)

// Account is an operator login. Stations lists the station ids a
// station-scoped account may open; elevated roles ignore it.
type Account struct {
	ID           string
	Email        string
	Name         string
	BadgeID      string
	PasswordHash string
	Role         string
	Stations     []string
}

func isElevated(role string) bool {
	return role == RoleDeveloper || role == RoleL4Plus || role == RoleL3
}

// HasStationAccess reports whether a role/stations pair may open a station
// page. Developer, L4+ and L3 bypass the per-station list.
func HasStationAccess(role string, stations []string, stationID string) bool {
	if stationID == "" {
		return false
	}
	if isElevated(role) {
		return true
	}
	for _, s := range stations {
		if s == stationID {
			return true
		}
	}
	return false
}

// CanManageMasterList gates the master registry (DA-List) surface.
// Only Developer and L4+ may touch it.
func CanManageMasterList(role string) bool {
	return role == RoleDeveloper || role == RoleL4Plus
}
