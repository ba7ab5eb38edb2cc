package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fritter/backend/internal/fanout"
)

// NewRouter builds the HTTP surface over the coordinator
func NewRouter(coord *fanout.Coordinator, log *zap.Logger, production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(cors())

	h := &handlers{coord: coord, logger: log}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", requireActor())
	{
		// Content groups
		api.GET("/groups", h.listFollowedGroups)
		api.POST("/groups", h.createGroup)
		api.GET("/groups/:name", h.getGroup)
		api.PUT("/groups/:name", h.applyCommand)
		api.DELETE("/groups/:name", h.deleteGroup)
		api.POST("/groups/:name/followers", h.followGroup)
		api.DELETE("/groups/:name/followers", h.unfollowGroup)

		// Relationship edges
		api.GET("/users/:username/relation", h.relation)
		api.GET("/users/:username/friends", h.friends)
		api.POST("/relations/:kind/:username", h.addEdge)
		api.DELETE("/relations/:kind/:username", h.removeEdge)

		// Feeds
		api.GET("/feeds/:name", h.getFeed)
		api.PUT("/feeds/:name/sort", h.setFeedSort)
		api.PUT("/feeds/:name/show-viewed", h.setShowViewedPosts)
	}

	return router
}
