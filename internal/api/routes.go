package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"resumatch/internal/api/middleware"
	"resumatch/internal/auth"
	"resumatch/internal/database"
	"resumatch/internal/storage"
)

// RegisterRoutes 注册 API 路由。
// 匿名用户只能到达认证端点；求职者进入分析与资料流程；安置端进入看板与导出。
func RegisterRoutes(
	router *gin.Engine,
	store *database.Store,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
	clamdAddr string,
	maxUploadBytes int64,
) {
	authHandler := NewAuthHandler(store, authService, redisClient, logger)
	profileHandler := NewProfileHandler(store, logger)
	analysisHandler := NewAnalysisHandler(store, storageClient, redisClient, logger, clamdAddr, maxUploadBytes)
	placementHandler := NewPlacementHandler(store, logger)

	authMiddleware := middleware.AuthMiddleware(authService)
	studentOnly := middleware.RequireRole(database.RoleStudent)
	placementOnly := middleware.RequireRole(database.RolePlacement)

	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		profileGroup := v1.Group("/profile")
		profileGroup.Use(authMiddleware)
		{
			profileGroup.GET("", profileHandler.GetProfile)
			profileGroup.PUT("", profileHandler.UpdateProfile)
			profileGroup.GET("/analyses", profileHandler.ListAnalyses)
		}

		analysisGroup := v1.Group("/analysis")
		analysisGroup.Use(authMiddleware, studentOnly)
		{
			analysisGroup.POST("", analysisHandler.Analyze)
			analysisGroup.GET("/latest", analysisHandler.GetLatest)
			analysisGroup.DELETE("/latest", analysisHandler.ClearLatest)
			analysisGroup.GET("/tips", analysisHandler.GetTips)
			analysisGroup.GET("/records/:id/download-link", analysisHandler.GetDownloadLink)
		}

		placementGroup := v1.Group("/placement")
		placementGroup.Use(authMiddleware, placementOnly)
		{
			placementGroup.GET("/stats", placementHandler.GetStats)
			placementGroup.GET("/resumes", placementHandler.ListResumes)
			placementGroup.GET("/export", placementHandler.ExportCSV)
		}
	}
}
