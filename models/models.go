package models

import (
	"time"
)

// User represents a plant operator or back-office account in the users table.
type User struct {
	ID          int       `json:"id" example:"1"`
	EmployeeId  string    `json:"employee_id" example:"EMP001"`
	Email       string    `json:"email" example:"user@example.com"`
	Password    string    `json:"password" example:""`
	FirstName   string    `json:"first_name" example:"Nino"`
	LastName    string    `json:"last_name" example:"Beridze"`
	CreatedAt   time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UpdatedAt   time.Time `json:"updated_at" example:"2024-01-15T10:30:00Z"`
	FirstAccess time.Time `json:"first_access,omitempty" example:"2024-01-15T10:30:00Z"`
	LastAccess  time.Time `json:"last_access,omitempty" example:"2024-01-15T10:30:00Z"`
	IsAdmin     bool      `json:"is_admin" example:"false"`
	PhoneNo     string    `json:"phone_no" example:"555123456"`
	RoleID      int       `json:"role_id" example:"1"`
	RoleName    string    `json:"role_name" example:"Line Manager"`
	Suspended   bool      `json:"suspended" example:"false"`
}

// Session represents one logged-in device in the session table.
type Session struct {
	UserID                int       `json:"user_id"`
	SessionID             string    `json:"session_id"`
	HostName              string    `json:"host_name"`
	IPAddress             string    `json:"ip_address"`
	Timestamp             time.Time `json:"timestp"`
	ExpiresAt             time.Time `json:"expires_at"`
	RefreshToken          string    `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitempty"`
}

type Role struct {
	RoleID      int    `json:"role_id" example:"1"`
	RoleName    string `json:"role_name" example:"QA"`
	Description string `json:"description" example:"Quality assurance"`
}

type Permission struct {
	PermissionID   int    `json:"permission_id" example:"1"`
	PermissionName string `json:"permission_name" example:"process.execute"`
	Description    string `json:"description" example:"Run process steps"`
}

type RolePermission struct {
	ID           int `json:"id" example:"1"`
	RoleID       int `json:"role_id" example:"1"`
	PermissionID int `json:"permission_id" example:"1"`
}

// ActivityLog is one audit row written after every mutating operation.
type ActivityLog struct {
	ID           int       `json:"id" example:"1"`
	CreatedAt    time.Time `json:"created_at" example:"2024-01-15T10:30:00Z"`
	UserName     string    `json:"user_name" example:"Nino Beridze"`
	HostName     string    `json:"host_name" example:"line-terminal-02"`
	EventContext string    `json:"event_context" example:"pack_entry"`
	IPAddress    string    `json:"ip_address" example:"192.168.1.1"`
	Description  string    `json:"description" example:"Created pack entry"`
	EventName    string    `json:"event_name" example:"Create"`
	LotRunID     int       `json:"lot_run_id" example:"12"`
}

// EmailData carries substitution variables for notification templates.
type EmailData struct {
	RecipientName string            `json:"recipient_name"`
	Subject       string            `json:"subject"`
	Variables     map[string]string `json:"variables"`
}
