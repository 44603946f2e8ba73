package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterConfig struct {
	CoreHandler     *CoreHandler
	CallbackHandler *CallbackHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("tabsdata-server"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:2457", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", HealthCheck)

	// Worker callbacks live outside the api group; workers authenticate
	// with the per-run token, not a session.
	router.POST("/callback/:function_run_id", cfg.CallbackHandler.Callback)

	api := router.Group("/api")
	{
		h := cfg.CoreHandler

		api.GET("/collections", h.ListCollections)
		api.POST("/collections", h.CreateCollection)
		api.DELETE("/collections/:collection", h.DeleteCollection)

		api.GET("/collections/:collection/functions", h.ListFunctions)
		api.POST("/collections/:collection/functions", h.RegisterFunction)
		api.POST("/collections/:collection/functions/:function", h.UpdateFunction)
		api.DELETE("/collections/:collection/functions/:function", h.DeleteFunction)
		api.POST("/collections/:collection/functions/:function/trigger", h.Trigger)

		api.GET("/collections/:collection/tables", h.ListTables)
		api.DELETE("/collections/:collection/tables/:table", h.DeleteTable)
		api.GET("/collections/:collection/tables/:table/schema", h.TableSchema)
		api.GET("/collections/:collection/tables/:table/data-versions", h.ListTableDataVersions)

		api.GET("/executions", h.ListExecutions)
		api.GET("/executions/:id", h.GetExecution)
		api.GET("/executions/:id/transactions", h.ListExecutionTransactions)
		api.POST("/executions/:id/cancel", h.CancelExecution)

		api.GET("/transactions", h.ListTransactions)
		api.POST("/transactions/:id/cancel", h.CancelTransaction)
		api.POST("/transactions/:id/recover", h.RecoverTransaction)

		api.GET("/function-runs", h.ListFunctionRuns)
		api.POST("/function-runs/:id/hold", h.HoldRun)
		api.POST("/function-runs/:id/resume", h.ResumeRun)
	}

	return router
}

func HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
