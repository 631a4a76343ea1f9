package handlers

import (
	"backend/models"
	"backend/storage"
	"backend/utils"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errMissingSessionHeader = errors.New("session_id header is missing")

const sessionLifetime = 12 * time.Hour

// LoginHandler authenticates a user by email/password (or a still-valid
// access token) and opens a session for the terminal.
// @Summary Login user
// @Description Authenticate user and return session plus access/refresh tokens
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /api/login [post]
func LoginHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))

		// Token-based login: a valid access token short-circuits the
		// password check. An invalid token falls through to credentials.
		if token != "" {
			if parsedToken, err := utils.ValidateJWT(token); err == nil && parsedToken.Valid {
				claims, ok := parsedToken.Claims.(jwt.MapClaims)
				if !ok {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims structure"})
					return
				}
				email, ok := claims["email"].(string)
				if !ok || email == "" {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "Email claim missing or invalid"})
					return
				}

				user, err := storage.GetUserByEmail(db, email)
				if err != nil {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
					return
				}
				if user.Suspended {
					c.JSON(http.StatusForbidden, gin.H{"error": "Account is suspended"})
					return
				}

				var roleName string
				err = db.QueryRow("SELECT r.role_name FROM users u JOIN roles r ON u.role_id = r.role_id WHERE u.id = $1", user.ID).Scan(&roleName)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user role", "details": err.Error()})
					return
				}

				c.JSON(http.StatusOK, gin.H{
					"message":      "User successfully logged in via token",
					"access_token": token,
					"role":         roleName,
					"user": gin.H{
						"id":    user.ID,
						"email": user.Email,
					},
				})
				return
			}
		}

		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := storage.GetUserByEmail(db, req.Email)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		if user.Suspended {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is suspended"})
			return
		}
		if !utils.ValidatePassword(user.Password, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		accessToken, err := utils.GenerateJWT(user.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate access token"})
			return
		}

		sessionID := uuid.NewString()
		refreshToken, err := utils.GenerateRefreshToken(user.Email, sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate refresh token"})
			return
		}

		now := time.Now()
		session := &models.Session{
			UserID:                user.ID,
			SessionID:             sessionID,
			HostName:              c.Request.Host,
			IPAddress:             req.IP,
			Timestamp:             now,
			ExpiresAt:             now.Add(sessionLifetime),
			RefreshToken:          refreshToken,
			RefreshTokenExpiresAt: now.Add(15 * 24 * time.Hour),
		}
		if session.IPAddress == "" {
			session.IPAddress = c.ClientIP()
		}

		if err := storage.SaveSession(db, session, true); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session", "details": err.Error()})
			return
		}

		var roleName string
		if err := db.QueryRow("SELECT r.role_name FROM users u JOIN roles r ON u.role_id = r.role_id WHERE u.id = $1", user.ID).Scan(&roleName); err != nil {
			roleName = ""
		}

		// first_access is stamped once, last_access on every login
		if _, err := db.Exec(`UPDATE users SET first_access = COALESCE(first_access, $1), last_access = $1 WHERE id = $2`, now, user.ID); err != nil {
			// Secondary update; the login itself already succeeded.
			c.Header("X-Warning", "failed to record access time")
		}

		c.JSON(http.StatusOK, gin.H{
			"message":       "User successfully logged in",
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"session_id":    sessionID,
			"role":          roleName,
			"user": gin.H{
				"id":    user.ID,
				"email": user.Email,
			},
		})
	}
}

// RefreshTokenHandler issues a new access token for a session holding a
// valid refresh token.
// @Summary Refresh access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.RefreshTokenRequest true "Session"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/refresh-token [post]
func RefreshTokenHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RefreshTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		refreshToken, err := storage.GetRefreshTokenBySession(db, req.SessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token not found or expired"})
			return
		}

		parsedToken, err := utils.ValidateJWT(refreshToken)
		if err != nil || !parsedToken.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}

		claims, ok := parsedToken.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims structure"})
			return
		}
		email, _ := claims["email"].(string)
		tokenType, _ := claims["type"].(string)
		if email == "" || tokenType != "refresh" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not a refresh token"})
			return
		}

		accessToken, err := utils.GenerateJWT(email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate access token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":      "Token refreshed",
			"access_token": accessToken,
		})
	}
}

// LogoutDeviceHandler closes one session (one device).
// @Summary Logout one device
// @Tags Authentication
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/logout-device [post]
func LogoutDeviceHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": errMissingSessionHeader.Error()})
			return
		}

		user, err := storage.GetUserBySessionID(db, sessionID)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		if err := storage.DeleteSessionByID(db, sessionID, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// GetActiveDevicesHandler lists the caller's active sessions.
// @Summary List active devices
// @Tags Authentication
// @Produce json
// @Success 200 {array} models.Session
// @Failure 401 {object} models.ErrorResponse
// @Router /api/active-devices [get]
func GetActiveDevicesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": errMissingSessionHeader.Error()})
			return
		}

		user, err := storage.GetUserBySessionID(db, sessionID)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		sessions, err := storage.GetUserSessions(db, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sessions", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, sessions)
	}
}

// ValidateSession confirms a session is still live and returns its user.
// @Summary Validate session
// @Tags Authentication
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /api/validate-session [post]
func ValidateSession(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": errMissingSessionHeader.Error()})
			return
		}

		user, err := storage.GetUserBySessionID(db, sessionID)
		if err != nil || user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		user.Password = ""
		c.JSON(http.StatusOK, user)
	}
}
