package models

// Swagger / API docs: common request and response models referenced by handler annotations

// ErrorResponse is used in @Failure for error responses
type ErrorResponse struct {
	Error   string `json:"error" example:"Invalid input"`
	Details string `json:"details,omitempty" example:""`
}

// MessageResponse is the generic response for APIs that return only {"message": "..."}
type MessageResponse struct {
	Message string `json:"message" example:"Success"`
}

// LoginRequest is used in @Param for login body
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"user@example.com"`
	Password string `json:"password" binding:"required" example:"password"`
	IP       string `json:"ip" example:"192.168.1.1"`
}

// LoginUser is the user object inside LoginResponse
type LoginUser struct {
	ID    int    `json:"id" example:"1"`
	Email string `json:"email" example:"user@example.com"`
}

// LoginResponse is used in @Success for login
type LoginResponse struct {
	Message      string    `json:"message" example:"User successfully logged in"`
	AccessToken  string    `json:"access_token" example:"eyJhbGc..."`
	RefreshToken string    `json:"refresh_token,omitempty" example:"eyJhbGc..."`
	Role         string    `json:"role" example:"QA"`
	User         LoginUser `json:"user"`
}

// RefreshTokenRequest is the body for the refresh-token endpoint
type RefreshTokenRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}
