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

// Product catalog goes through the GORM path; the process tables stay on
// database/sql so ledger checks and writes share one transaction.

// CreateProductHandler adds a product to the catalog.
// @Summary Create product
// @Tags Products
// @Accept json
// @Produce json
// @Param request body models.Product true "Product"
// @Success 201 {object} models.ProductGorm
// @Failure 400 {object} models.ErrorResponse
// @Router /api/products [post]
func CreateProductHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		var req models.Product
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		if req.Kind != models.ProductKindRaw && req.Kind != models.ProductKindFinished {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be RAW or FINISHED"})
			return
		}

		product := models.ProductGorm{
			Name:        req.Name,
			Kind:        req.Kind,
			SKU:         req.SKU,
			Description: req.Description,
			CreatedBy:   userName,
		}
		if err := gdb.Create(&product).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "product",
			IPAddress:    session.IPAddress,
			Description:  "Created product " + product.Name,
			EventName:    "Create",
		})

		c.JSON(http.StatusCreated, product)
	}
}

// GetProductsHandler lists products, optionally filtered by kind.
// @Summary List products
// @Tags Products
// @Produce json
// @Param kind query string false "RAW or FINISHED"
// @Success 200 {array} models.ProductGorm
// @Failure 401 {object} models.ErrorResponse
// @Router /api/products [get]
func GetProductsHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		query := gdb.Order("id")
		if kind := c.Query("kind"); kind != "" {
			query = query.Where("kind = ?", kind)
		}

		var products []models.ProductGorm
		if err := query.Find(&products).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, products)
	}
}

// GetProductHandler fetches one product.
// @Summary Get product
// @Tags Products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} models.ProductGorm
// @Failure 404 {object} models.ErrorResponse
// @Router /api/products/{id} [get]
func GetProductHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, err := validateAndGetSession(c, db); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
			return
		}

		var product models.ProductGorm
		if err := gdb.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, product)
	}
}

// UpdateProductHandler edits catalog fields of a product.
// @Summary Update product
// @Tags Products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param request body models.Product true "Product"
// @Success 200 {object} models.ProductGorm
// @Failure 404 {object} models.ErrorResponse
// @Router /api/products/{id} [put]
func UpdateProductHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
			return
		}

		var req models.Product
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var product models.ProductGorm
		if err := gdb.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product", "details": err.Error()})
			return
		}

		product.Name = req.Name
		product.SKU = req.SKU
		product.Description = req.Description
		if req.Kind != "" {
			product.Kind = req.Kind
		}
		if err := gdb.Save(&product).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product", "details": err.Error()})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "product",
			IPAddress:    session.IPAddress,
			Description:  "Updated product " + product.Name,
			EventName:    "Update",
		})

		c.JSON(http.StatusOK, product)
	}
}

// DeleteProductHandler soft-deletes a product.
// @Summary Delete product
// @Tags Products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/products/{id} [delete]
func DeleteProductHandler(gdb *gorm.DB, db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, userName, err := validateAndGetSession(c, db)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session", "details": err.Error()})
			return
		}

		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
			return
		}

		res := gdb.Delete(&models.ProductGorm{}, id)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete product", "details": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}

		SaveActivityLog(db, models.ActivityLog{
			CreatedAt:    time.Now(),
			UserName:     userName,
			HostName:     session.HostName,
			EventContext: "product",
			IPAddress:    session.IPAddress,
			Description:  "Deleted product " + strconv.Itoa(id),
			EventName:    "Delete",
		})

		c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
	}
}
