package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gymflow/internal/domain"
)

// ProfileUpdater applies member profile changes.
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, memberID string, update domain.MemberProfileUpdate) (*domain.Member, error)
}

// ClassUpdater applies class changes.
type ClassUpdater interface {
	UpdateClass(ctx context.Context, classID string, update domain.ClassUpdate) (*domain.Class, error)
}

// ProfileHandler handles member profile and class updates.
type ProfileHandler struct {
	members ProfileUpdater
	classes ClassUpdater
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(members ProfileUpdater, classes ClassUpdater) *ProfileHandler {
	return &ProfileHandler{members: members, classes: classes}
}

// UpdateMemberProfile handles PATCH /api/v1/members/:memberId/profile.
func (h *ProfileHandler) UpdateMemberProfile(c *gin.Context) {
	var update domain.MemberProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	member, err := h.members.UpdateProfile(c.Request.Context(), c.Param("memberId"), update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// UpdateClass handles PATCH /api/v1/classes/:classId.
func (h *ProfileHandler) UpdateClass(c *gin.Context) {
	var update domain.ClassUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	class, err := h.classes.UpdateClass(c.Request.Context(), c.Param("classId"), update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, class)
}
