package model

import "github.com/shopspring/decimal"

type Tenant struct {
	ID   string
	Name string
}

type Service struct {
	ID              string
	TenantID        string
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
}

// Professional performs the services listed in ServiceIDs.
type Professional struct {
	ID         string
	TenantID   string
	Name       string
	Active     bool
	ServiceIDs []string
}

func (p Professional) Performs(serviceID string) bool {
	for _, id := range p.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

type Client struct {
	ID       string
	TenantID string
	Name     string
	Email    string
	Phone    string
}
