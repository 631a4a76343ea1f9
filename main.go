// @title NutLine API
// @version 1.0
// @description Backend for the nut processing plant: supply intake, lot runs, quantity ledger, metal checks, packing and storage.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey SessionAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	_ "backend/docs"
	"backend/handlers"
	"backend/services"
	"backend/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// cronRunning guards against overlapping maintenance runs.
var cronRunning int32

// activityLogRetention is how long the audit trail is kept before the nightly
// prune removes it.
const activityLogRetention = 180 * 24 * time.Hour

// safeGo runs fn on its own goroutine with panic recovery so a crashing
// background job cannot take the server down with it.
func safeGo(wg *sync.WaitGroup, name string, logger *log.Logger, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("panic in %s: %v", name, r)
			}
		}()
		fn()
	}()
}

// CORSConfig allows the plant terminals and the local dev frontend.
func CORSConfig() cors.Config {
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"https://nutline.app",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	config.ExposeHeaders = []string{"Content-Disposition", "X-Warning"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour
	return config
}

// RBACMiddleware rejects the request unless the session user holds the named
// permission. Admin roles bypass the permission table.
func RBACMiddleware(db *sql.DB, requiredPermission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader("Authorization")
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is missing"})
			return
		}

		user, err := storage.GetUserBySessionID(db, sessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
			return
		}

		var roleName string
		if err := db.QueryRow(`SELECT role_name FROM roles WHERE role_id = $1`, user.RoleID).Scan(&roleName); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Role not found"})
			return
		}
		if roleName == "admin" || roleName == "superadmin" {
			c.Next()
			return
		}

		permissionID, err := storage.GetPermissionID(db, requiredPermission)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unknown permission"})
			return
		}

		var count int
		err = db.QueryRow(`
			SELECT COUNT(*) FROM role_permissions
			WHERE role_id = $1 AND permission_id = $2`, user.RoleID, permissionID).Scan(&count)
		if err != nil || count == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
			return
		}

		c.Next()
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	db := storage.InitDB()
	defer db.Close()
	db.SetMaxOpenConns(15)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	gdb := storage.InitGormDB()

	emailService := services.NewEmailService(db)
	noteSaver := services.NewNoteSaver(db, services.DefaultNoteDelay)

	cronLogFile, err := os.OpenFile("cron_errors.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open cron log file: %v", err)
	}
	defer cronLogFile.Close()
	cronLogger := log.New(cronLogFile, "cron: ", log.LstdFlags)

	var wg sync.WaitGroup
	c := cron.New(cron.WithChain(
		cron.Recover(cron.VerbosePrintfLogger(cronLogger)),
	))
	_, err = c.AddFunc("15 3 * * *", func() {
		if !atomic.CompareAndSwapInt32(&cronRunning, 0, 1) {
			cronLogger.Println("maintenance already running, skipping")
			return
		}
		defer atomic.StoreInt32(&cronRunning, 0)

		safeGo(&wg, "session-cleanup", cronLogger, func() {
			if err := storage.CleanupExpiredSessions(db); err != nil {
				cronLogger.Printf("session cleanup failed: %v", err)
			}
		})
		safeGo(&wg, "log-prune", cronLogger, func() {
			pruned, err := storage.PruneActivityLogs(db, activityLogRetention)
			if err != nil {
				cronLogger.Printf("activity log prune failed: %v", err)
				return
			}
			if pruned > 0 {
				cronLogger.Printf("pruned %d activity log rows", pruned)
			}
		})
		wg.Wait()
	})
	if err != nil {
		log.Fatalf("Failed to schedule maintenance job: %v", err)
	}
	c.Start()
	defer c.Stop()

	router := gin.Default()
	router.Use(cors.New(CORSConfig()))

	// ==================== 1. AUTH & SESSIONS ====================
	router.POST("/api/login", handlers.LoginHandler(db))
	router.POST("/api/refresh-token", handlers.RefreshTokenHandler(db))
	router.GET("/api/validate-session", handlers.ValidateSession(db))
	router.POST("/api/logout-device", handlers.LogoutDeviceHandler(db))
	router.GET("/api/active-devices", handlers.GetActiveDevicesHandler(db))

	// ==================== 2. USERS & ROLES ====================
	router.POST("/api/users", RBACMiddleware(db, "manage_users"), handlers.CreateUserHandler(db))
	router.GET("/api/users", RBACMiddleware(db, "manage_users"), handlers.GetAllUsersHandler(db))
	router.PUT("/api/users/:id", RBACMiddleware(db, "manage_users"), handlers.UpdateUserHandler(db))
	router.PUT("/api/users/password", handlers.ChangePasswordHandler(db))
	router.GET("/api/roles", handlers.GetRolesHandler(db))
	router.GET("/api/roles/:id/permissions", handlers.GetRolePermissionsHandler(db))

	// ==================== 3. CATALOG ====================
	router.POST("/api/products", RBACMiddleware(db, "manage_catalog"), handlers.CreateProductHandler(gdb, db))
	router.GET("/api/products", handlers.GetProductsHandler(gdb, db))
	router.GET("/api/products/:id", handlers.GetProductHandler(gdb, db))
	router.PUT("/api/products/:id", RBACMiddleware(db, "manage_catalog"), handlers.UpdateProductHandler(gdb, db))
	router.DELETE("/api/products/:id", RBACMiddleware(db, "manage_catalog"), handlers.DeleteProductHandler(gdb, db))
	router.POST("/api/suppliers", RBACMiddleware(db, "manage_catalog"), handlers.CreateSupplierHandler(gdb, db))
	router.GET("/api/suppliers", handlers.GetSuppliersHandler(gdb, db))
	router.PUT("/api/suppliers/:id", RBACMiddleware(db, "manage_catalog"), handlers.UpdateSupplierHandler(gdb, db))
	router.DELETE("/api/suppliers/:id", RBACMiddleware(db, "manage_catalog"), handlers.DeleteSupplierHandler(gdb, db))

	// ==================== 4. SUPPLY INTAKE ====================
	router.POST("/api/shipments", handlers.CreateShipmentHandler(db))
	router.GET("/api/shipments", handlers.GetShipmentsHandler(db))
	router.POST("/api/supply_batches", handlers.CreateSupplyBatchHandler(db))
	router.GET("/api/supply_batches", handlers.GetSupplyBatchesHandler(db))
	router.GET("/api/supply_batches/:id", handlers.GetSupplyBatchHandler(db))
	router.GET("/api/supply_batches/:id/qrcode", handlers.GetBatchQRCodeHandler(db))

	// ==================== 5. LOT RUNS & STEPS ====================
	router.POST("/api/lot_runs", handlers.StartLotRunHandler(db))
	router.GET("/api/lot_runs", handlers.GetAllLotRunsHandler(db))
	router.GET("/api/lot_runs/:id", handlers.GetLotRunHandler(db))
	router.GET("/api/lot_runs/:id/available_quantity", handlers.GetAvailableQuantityHandler(db))
	router.PUT("/api/step_runs/:id/status", handlers.UpdateStepStatusHandler(db))
	router.GET("/api/step_runs/:id/stage_runs", handlers.GetStageRunsHandler(db))
	router.POST("/api/stage_runs", handlers.CreateStageRunHandler(db))

	// ==================== 6. WASTE ====================
	router.POST("/api/waste_records", handlers.CreateWasteRecordHandler(db))
	router.GET("/api/waste_records", handlers.GetWasteRecordsHandler(db))

	// ==================== 7. SORTING & METAL CHECK ====================
	router.POST("/api/sorting_outputs", handlers.CreateSortingOutputHandler(db))
	router.GET("/api/sorting_outputs", handlers.GetSortingOutputsHandler(db))
	router.GET("/api/sorting_outputs/:id/remaining_mass", handlers.GetRemainingMassHandler(db))
	router.GET("/api/sorting_outputs/:id/gate", handlers.GetGateStatusHandler(db))
	router.GET("/api/sorting_outputs/:id/metal_checks", handlers.GetMetalCheckAttemptsHandler(db))
	router.POST("/api/metal_checks", handlers.CreateMetalCheckHandler(db, emailService))

	// ==================== 8. PACKING & STORAGE ====================
	router.POST("/api/pack_entries", handlers.CreatePackEntryHandler(db))
	router.GET("/api/pack_entries", handlers.GetPackEntriesHandler(db))
	router.GET("/api/pack_sizes", handlers.GetPackSizeOptionsHandler())
	router.POST("/api/storage_allocations", handlers.CreateStorageAllocationHandler(db))
	router.GET("/api/storage_allocations", handlers.GetStorageAllocationsHandler(db))
	router.PUT("/api/storage_allocations/:id", handlers.UpdateStorageAllocationHandler(db))

	// ==================== 9. REWORK ====================
	router.POST("/api/reworks", handlers.CreateReworkHandler(db))
	router.GET("/api/reworks", handlers.GetReworksHandler(db))

	// ==================== 10. NOTES, REPORTS & DASHBOARD ====================
	router.PUT("/api/process_notes", handlers.SaveProcessNoteHandler(db, noteSaver))
	router.GET("/api/lot_runs/:id/notes", handlers.GetProcessNotesHandler(db))
	router.GET("/api/lot_runs/:id/waste_report", handlers.ExportWasteReportHandler(db))
	router.GET("/api/lot_runs/:id/summary_pdf", handlers.GenerateLotRunPdfHandler(db))
	router.GET("/api/dashboard", handlers.GetDashboardHandler(db))
	router.GET("/api/logs", RBACMiddleware(db, "view_logs"), handlers.GetActivityLogsHandler(db))

	// ==================== 11. SWAGGER ====================
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL("/swagger/doc.json")))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if _, err := strconv.Atoi(port); err != nil {
		log.Fatalf("Invalid PORT value %q: %v", port, err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	// Flush pending note autosaves before the listener goes away.
	noteSaver.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Forced shutdown: %v", err)
	}
	log.Println("Server exited")
}
