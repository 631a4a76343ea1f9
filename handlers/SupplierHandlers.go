package handlers

import (
	"backend/models"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateSupplierHandler registers a supplier.
// @Summary Create supplier
// @Tags Suppliers
// @Accept json
// @Produce json
// @Param request body models.Supplier true "Supplier"
// @Success 201 {object} models.SupplierGorm
// @Failure 400 {object} models.ErrorResponse
// @Router /api/suppliers [post]
func CreateSupplierHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.Supplier
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		supplier := models.SupplierGorm{
			Name:          req.Name,
			ContactPerson: req.ContactPerson,
			Email:         req.Email,
			PhoneNo:       req.PhoneNo,
			Address:       req.Address,
		}
		if err := gdb.Create(&supplier).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create supplier", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "supplier",
			IPAddress:    session.IPAddress,
			Description:  "Created supplier " + supplier.Name,
			EventName:    "Create",
		})

		c.JSON(http.StatusCreated, supplier)
	}
}

// GetSuppliersHandler lists suppliers.
// @Summary List suppliers
// @Tags Suppliers
// @Produce json
// @Success 200 {array} models.SupplierGorm
// @Failure 401 {object} models.ErrorResponse
// @Router /api/suppliers [get]
func GetSuppliersHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var suppliers []models.SupplierGorm
		if err := gdb.Order("id").Find(&suppliers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch suppliers", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, suppliers)
	}
}

// UpdateSupplierHandler edits a supplier.
// @Summary Update supplier
// @Tags Suppliers
// @Accept json
// @Produce json
// @Param id path int true "Supplier ID"
// @Param request body models.Supplier true "Supplier"
// @Success 200 {object} models.SupplierGorm
// @Failure 404 {object} models.ErrorResponse
// @Router /api/suppliers/{id} [put]
func UpdateSupplierHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid supplier id"})
			return
		}

		var req models.Supplier
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var supplier models.SupplierGorm
		if err := gdb.First(&supplier, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Supplier not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch supplier", "details": err.Error()})
			return
		}

		supplier.Name = req.Name
		supplier.ContactPerson = req.ContactPerson
		supplier.Email = req.Email
		supplier.PhoneNo = req.PhoneNo
		supplier.Address = req.Address
		if err := gdb.Save(&supplier).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update supplier", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "supplier",
			IPAddress:    session.IPAddress,
			Description:  "Updated supplier " + supplier.Name,
			EventName:    "Update",
		})

		c.JSON(http.StatusOK, supplier)
	}
}

// DeleteSupplierHandler soft-deletes a supplier.
// @Summary Delete supplier
// @Tags Suppliers
// @Produce json
// @Param id path int true "Supplier ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/suppliers/{id} [delete]
func DeleteSupplierHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid supplier id"})
			return
		}

		res := gdb.Delete(&models.SupplierGorm{}, id)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete supplier", "details": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Supplier not found"})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "supplier",
			IPAddress:    session.IPAddress,
			Description:  "Deleted supplier " + strconv.Itoa(id),
			EventName:    "Delete",
		})

		c.JSON(http.StatusOK, gin.H{"message": "Supplier deleted"})
	}
}
