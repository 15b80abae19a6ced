package asset

import (
	"errors"
	"time"
)

// Asset statuses.
const (
	StatusActive   = "active"
	StatusReturned = "returned"
	StatusLost     = "lost"
	StatusDamaged  = "damaged"
	StatusRetired  = "retired"
)

var (
	ErrNotFound      = errors.New("asset: not found")
	ErrInvalidInput  = errors.New("asset: invalid input")
	ErrInvalidStatus = errors.New("asset: invalid status")
)

// ValidStatus reports whether the status is recognised.
func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusReturned, StatusLost, StatusDamaged, StatusRetired:
		return true
	}
	return false
}

// Asset is one company-issued device. Employee and manager identity is
// denormalized on the row so roster views need no user join.
type Asset struct {
	ID            string     `json:"id"`
	EmployeeName  string     `json:"employee_name"`
	EmployeeEmail string     `json:"employee_email"`
	ManagerName   string     `json:"manager_name,omitempty"`
	ManagerEmail  string     `json:"manager_email,omitempty"`
	CompanyID     string     `json:"company_id,omitempty"`
	AssetType     string     `json:"asset_type"`
	Make          string     `json:"make,omitempty"`
	Model         string     `json:"model,omitempty"`
	SerialNumber  string     `json:"serial_number,omitempty"`
	AssetTag      string     `json:"asset_tag,omitempty"`
	Status        string     `json:"status"`
	RegisteredAt  time.Time  `json:"registered_at"`
	IssuedAt      *time.Time `json:"issued_at,omitempty"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Filter narrows asset listings.
type Filter struct {
	Status        string
	CompanyID     string
	EmployeeEmail string
	ManagerEmail  string
	Limit         int
}

// Update carries optional editable fields.
type Update struct {
	EmployeeName  *string
	EmployeeEmail *string
	ManagerName   *string
	ManagerEmail  *string
	CompanyID     *string
	AssetType     *string
	Make          *string
	Model         *string
	SerialNumber  *string
	AssetTag      *string
	Status        *string
}
