package customer

import (
	"strings"
	"time"
)

// Customer is a storefront customer reachable over chat.
type Customer struct {
	ID        string
	Phone     string
	FirstName string
	LastName  string
	Address   string
	Latitude  string
	Longitude string
	CreatedAt time.Time
}

// Name returns the display name.
func (c Customer) Name() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CreateInput captures the data collected by the bot before registration.
type CreateInput struct {
	Phone     string
	Name      string
	Address   string
	Latitude  string
	Longitude string
}

func (in CreateInput) hasLocation() bool {
	return strings.TrimSpace(in.Latitude) != "" && strings.TrimSpace(in.Longitude) != ""
}
