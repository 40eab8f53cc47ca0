package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atelio-app/atelio_backend/controllers"
	"github.com/atelio-app/atelio_backend/middleware"
	"github.com/atelio-app/atelio_backend/websocket"
)

// RegisterCommissionRoutes sets up all commission-related protected routes
func RegisterCommissionRoutes(e *echo.Echo, commissionController *controllers.CommissionController, hub *websocket.Hub) {
	r := e.Group("/api")
	r.Use(middleware.JWTMiddleware())

	// Admin routes
	r.GET("/commissions", commissionController.ListCommissions)
	r.DELETE("/commissions/:id", commissionController.DeleteCommission)

	// Client routes
	r.POST("/commissions", commissionController.CreateCommission)
	r.GET("/commissions/mine", commissionController.GetMyCommissions)
	r.POST("/commissions/:id/respond", commissionController.RespondToCommission)

	// Artist routes
	r.GET("/commissions/assigned", commissionController.GetAssignedCommissions)
	r.POST("/commissions/:id/accept", commissionController.AcceptCommission)
	r.POST("/commissions/:id/decline", commissionController.DeclineCommission)
	r.POST("/commissions/:id/renegotiate", commissionController.RenegotiateCommission)
	r.POST("/commissions/:id/complete", commissionController.CompleteCommission)

	// Shared
	r.GET("/commissions/:id", commissionController.GetCommission)

	// WebSocket endpoint for async outcome pushes (payment results)
	r.GET("/ws", func(c echo.Context) error {
		claims := middleware.GetUserFromToken(c)
		if claims == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid user ID in token")
		}
		return websocket.HandleWebSocket(c, hub, userID)
	})
}
