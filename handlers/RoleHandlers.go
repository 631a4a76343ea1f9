package handlers

import (
	"backend/models"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetRolesHandler lists all roles.
// @Summary List roles
// @Tags Roles
// @Produce json
// @Success 200 {array} models.Role
// @Failure 401 {object} models.ErrorResponse
// @Router /api/roles [get]
func GetRolesHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		rows, err := db.Query(`SELECT role_id, role_name, COALESCE(description, '') FROM roles ORDER BY role_id`)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch roles", "details": err.Error()})
			return
		}
		defer rows.Close()

		var roles []models.Role
		for rows.Next() {
			var r models.Role
			if err := rows.Scan(&r.RoleID, &r.RoleName, &r.Description); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan role", "details": err.Error()})
				return
			}
			roles = append(roles, r)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, roles)
	}
}

// GetRolePermissionsHandler lists permission names attached to a role.
// @Summary List role permissions
// @Tags Roles
// @Produce json
// @Param id path int true "Role ID"
// @Success 200 {array} models.Permission
// @Failure 401 {object} models.ErrorResponse
// @Router /api/roles/{id}/permissions [get]
func GetRolePermissionsHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		roleID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role id"})
			return
		}

		rows, err := db.Query(`
			SELECT p.permission_id, p.permission_name, COALESCE(p.description, '')
			FROM permissions p
			JOIN role_permissions rp ON rp.permission_id = p.permission_id
			WHERE rp.role_id = $1
			ORDER BY p.permission_id`, roleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch permissions", "details": err.Error()})
			return
		}
		defer rows.Close()

		var perms []models.Permission
		for rows.Next() {
			var p models.Permission
			if err := rows.Scan(&p.PermissionID, &p.PermissionName, &p.Description); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan permission", "details": err.Error()})
				return
			}
			perms = append(perms, p)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Row iteration error", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, perms)
	}
}
