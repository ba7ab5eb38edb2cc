package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fritter/backend/internal/fanout"
	"fritter/backend/internal/model"
	"fritter/backend/pkg/errors"
)

type handlers struct {
	coord  *fanout.Coordinator
	logger *zap.Logger
}

// ============================================================================
// Content groups
// ============================================================================

func (h *handlers) createGroup(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		IsPublic    bool   `json:"is_public"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": errors.ErrorTypeInvalidArgument})
		return
	}

	group, err := h.coord.CreateGroup(c.Request.Context(), actorOf(c), req.Name, req.IsPublic, req.Description)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *handlers) getGroup(c *gin.Context) {
	group, err := h.coord.GetGroup(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *handlers) listFollowedGroups(c *gin.Context) {
	groups, err := h.coord.ListFollowedGroups(c.Request.Context(), actorOf(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *handlers) deleteGroup(c *gin.Context) {
	if err := h.coord.DeleteGroup(c.Request.Context(), actorOf(c), c.Param("name")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// applyCommand runs one tagged membership command
func (h *handlers) applyCommand(c *gin.Context) {
	var req struct {
		Command  string `json:"command" binding:"required"`
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": errors.ErrorTypeInvalidArgument})
		return
	}

	cmd, err := fanout.ParseGroupCommand(req.Command, c.Param("name"), req.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.coord.Apply(c.Request.Context(), actorOf(c), cmd); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied", "command": cmd.Name()})
}

func (h *handlers) followGroup(c *gin.Context) {
	if err := h.coord.FollowGroup(c.Request.Context(), actorOf(c), c.Param("name")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "following"})
}

func (h *handlers) unfollowGroup(c *gin.Context) {
	if err := h.coord.UnfollowGroup(c.Request.Context(), actorOf(c), c.Param("name")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ============================================================================
// Relationship edges
// ============================================================================

func (h *handlers) addEdge(c *gin.Context) {
	kind, err := model.ParseEdgeKind(c.Param("kind"))
	if err != nil {
		h.writeError(c, errors.NewInvalidArgument("kind", err.Error()))
		return
	}
	if err := h.coord.AddEdge(c.Request.Context(), kind, actorOf(c), c.Param("username")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "related"})
}

func (h *handlers) removeEdge(c *gin.Context) {
	kind, err := model.ParseEdgeKind(c.Param("kind"))
	if err != nil {
		h.writeError(c, errors.NewInvalidArgument("kind", err.Error()))
		return
	}
	if err := h.coord.RemoveEdge(c.Request.Context(), kind, actorOf(c), c.Param("username")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) relation(c *gin.Context) {
	status, err := h.coord.Relation(c.Request.Context(), actorOf(c), c.Param("username"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *handlers) friends(c *gin.Context) {
	friends, err := h.coord.Friends(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ============================================================================
// Feeds
// ============================================================================

func (h *handlers) getFeed(c *gin.Context) {
	feed, err := h.coord.GetFeed(c.Request.Context(), actorOf(c), c.Param("name"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *handlers) setFeedSort(c *gin.Context) {
	var req struct {
		Sort string `json:"sort" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": errors.ErrorTypeInvalidArgument})
		return
	}
	// unknown sort modes are rejected here and never stored
	sort, err := model.ParseSortMode(req.Sort)
	if err != nil {
		h.writeError(c, errors.NewInvalidArgument("sort", err.Error()))
		return
	}

	if err := h.coord.SetFeedSort(c.Request.Context(), actorOf(c), c.Param("name"), sort); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sort": sort})
}

func (h *handlers) setShowViewedPosts(c *gin.Context) {
	var req struct {
		Show *bool `json:"show" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": errors.ErrorTypeInvalidArgument})
		return
	}

	if err := h.coord.SetShowViewedPosts(c.Request.Context(), actorOf(c), c.Param("name"), *req.Show); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"show_viewed_posts": *req.Show})
}
