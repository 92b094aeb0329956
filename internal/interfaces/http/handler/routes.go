package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/taproom/kegledger/internal/interfaces/http/router"
)

// KegRoutes creates the route group for the keg lifecycle and reconciliation
// endpoints. writeMiddleware guards the state-changing group only.
func KegRoutes(h *KegHandler, writeMiddleware ...gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("ledger", "")

	kegs := group.Group("kegs", "/kegs")
	kegs.GET("", h.ListKegs)
	kegs.GET("/:id", h.GetKeg)
	kegs.GET("/:id/scans", h.ListScans)
	kegs.GET("/:id/report", h.GetKegReport)
	kegs.GET("/:id/snapshot", h.GetPosSnapshot)

	writes := group.Group("keg-commands", "/kegs").Use(writeMiddleware...)
	writes.POST("", h.RegisterKeg)
	writes.POST("/:id/scans", h.RecordScan)
	writes.POST("/:id/retire", h.RetireKeg)
	writes.POST("/:id/repair", h.RepairRetirement)
	writes.POST("/sync", h.SyncSales)

	reports := group.Group("reports", "/reports")
	reports.GET("", h.ListReports)
	reports.GET("/:id", h.GetReport)

	return group
}

// SystemRoutes creates the route group for system endpoints
func SystemRoutes(h *SystemHandler) *router.DomainGroup {
	group := router.NewDomainGroup("system", "/system")
	group.GET("/info", h.GetSystemInfo)
	group.GET("/ping", h.Ping)
	return group
}
