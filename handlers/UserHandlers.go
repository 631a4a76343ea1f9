package handlers

import (
	"backend/models"
	"backend/storage"
	"backend/utils"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateUserHandler registers a new account.
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Param request body models.User true "User"
// @Success 201 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/users [post]
func CreateUserHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var user models.User
		if err := c.ShouldBindJSON(&user); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if user.Email == "" || user.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, user.Email).Scan(&exists); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check email", "details": err.Error()})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}

		hashed, err := utils.HashPassword(user.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		err = db.QueryRow(`
			INSERT INTO users (employee_id, email, password, first_name, last_name, is_admin, phone_no, role_id, suspended, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, NOW(), NOW())
			RETURNING id`,
			user.EmployeeId, user.Email, hashed, user.FirstName, user.LastName, user.IsAdmin, user.PhoneNo, user.RoleID,
		).Scan(&user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "user",
			IPAddress:    session.IPAddress,
			Description:  "Created user " + user.Email,
			EventName:    "Create",
		})

		user.Password = ""
		c.JSON(http.StatusCreated, user)
	}
}

// GetAllUsersHandler lists users with their role names.
// @Summary List users
// @Tags Users
// @Produce json
// @Success 200 {array} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /api/users [get]
func GetAllUsersHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		rows, err := db.Query(`
			SELECT u.id, u.employee_id, u.email, u.first_name, u.last_name,
			       u.is_admin, u.phone_no, u.role_id, COALESCE(r.role_name, ''), u.suspended,
			       u.created_at, u.updated_at
			FROM users u
			LEFT JOIN roles r ON u.role_id = r.role_id
			ORDER BY u.id`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users", "details": err.Error()})
			return
		}
		defer rows.Close()

		var users []models.User
		for rows.Next() {
			var u models.User
			if err := rows.Scan(&u.ID, &u.EmployeeId, &u.Email, &u.FirstName, &u.LastName,
				&u.IsAdmin, &u.PhoneNo, &u.RoleID, &u.RoleName, &u.Suspended,
				&u.CreatedAt, &u.UpdatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan user", "details": err.Error()})
				return
			}
			users = append(users, u)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, users)
	}
}

// UpdateUserHandler edits profile fields and role of one user.
// @Summary Update user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body models.User true "User"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/users/{id} [put]
func UpdateUserHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}

		var user models.User
		if err := c.ShouldBindJSON(&user); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := db.Exec(`
			UPDATE users SET employee_id = $1, first_name = $2, last_name = $3,
			       phone_no = $4, role_id = $5, is_admin = $6, suspended = $7, updated_at = NOW()
			WHERE id = $8`,
			user.EmployeeId, user.FirstName, user.LastName, user.PhoneNo,
			user.RoleID, user.IsAdmin, user.Suspended, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user", "details": err.Error()})
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		// Suspending kicks the user out of all devices immediately.
		if user.Suspended {
			if _, err := db.Exec(`DELETE FROM session WHERE user_id = $1`, id); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "User updated but failed to drop sessions", "details": err.Error()})
				return
			}
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "user",
			IPAddress:    session.IPAddress,
			Description:  "Updated user " + strconv.Itoa(id),
			EventName:    "Update",
		})

		c.JSON(http.StatusOK, gin.H{"message": "User updated"})
	}
}

// ChangePasswordHandler sets a new password for the calling user.
// @Summary Change password
// @Tags Users
// @Accept json
// @Produce json
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/users/password [put]
func ChangePasswordHandler(db *sql.DB) gin.HandlerFunc {
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

		var req struct {
			OldPassword string `json:"old_password" binding:"required"`
			NewPassword string `json:"new_password" binding:"required,min=8"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !utils.ValidatePassword(user.Password, req.OldPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Old password is incorrect"})
			return
		}

		hashed, err := utils.HashPassword(req.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		if _, err := db.Exec(`UPDATE users SET password = $1, updated_at = NOW() WHERE id = $2`, hashed, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
	}
}
