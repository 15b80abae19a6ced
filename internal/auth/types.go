package auth

import "time"

// Roles recognised across the service. Managers and coordinators hold a
// subset of administrative capabilities; employees only see their own data.
const (
	RoleAdmin       = "admin"
	RoleManager     = "manager"
	RoleCoordinator = "coordinator"
	RoleEmployee    = "employee"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// ValidRole reports whether the role is one of the recognised constants.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleCoordinator, RoleEmployee:
		return true
	}
	return false
}

// CanManage reports whether the role may operate on other users' data
// (asset registry, campaigns, reports).
func CanManage(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleCoordinator:
		return true
	}
	return false
}

// User represents an account. Manager identity is denormalized onto the row
// the same way the asset registry stores it, so manager views need no join.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	ManagerName   string    `json:"manager_name,omitempty"`
	ManagerEmail  string    `json:"manager_email,omitempty"`
	CompanyID     string    `json:"company_id,omitempty"`
	MFASecret     string    `json:"-"`
	MFAEnabled    bool      `json:"mfa_enabled"`
	EmailVerified bool      `json:"email_verified"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Company groups employees for campaign targeting.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Token purposes.
const (
	PurposePasswordReset     = "password_reset"
	PurposeEmailVerification = "email_verification"
)

// Token is a short-lived single-use credential (password reset, email
// verification). Only a SHA-256 hash of the secret half is stored.
type Token struct {
	ID        string
	UserID    string
	Purpose   string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// UserUpdate carries optional admin-editable fields.
type UserUpdate struct {
	Name         *string
	Role         *string
	ManagerName  *string
	ManagerEmail *string
	CompanyID    *string
	Status       *string
}
