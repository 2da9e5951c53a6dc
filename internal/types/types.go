// README: Shared identifiers and coordinates.
package types

// ID is an opaque identifier: auth UIDs for people, tracking codes for contracts.
type ID string

func (id ID) String() string { return string(id) }

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Role is the kind of account a profile belongs to.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAirline  Role = "airline"
	RoleDelivery Role = "delivery"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAirline, RoleDelivery:
		return true
	}
	return false
}
