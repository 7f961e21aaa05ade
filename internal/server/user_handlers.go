package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
	"github.com/hds-conecte/conecte/internal/sysinfo"
)

// UpdateRoleRequest assigns a role to an account
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// @Summary List users
// @Description List all users (admin, dev-admin)
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search by email or name"
// @Success 200 {array} UserDetail
// @Failure 401 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Router /api/users [get]
func (s *Server) listUsers(c *gin.Context) {
	query := s.db.Order("created_at DESC")
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	userDetails := make([]*UserDetail, len(users))
	for i := range users {
		userDetails[i] = newUserDetail(&users[i])
	}

	c.JSON(http.StatusOK, userDetails)
}

// @Summary Set user role
// @Description Assign user, admin or dev-admin (dev-admin only, cannot change own role)
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateRoleRequest true "Role"
// @Success 200 {object} UserDetail
// @Failure 400 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/users/{id}/role [patch]
func (s *Server) updateUserRole(c *gin.Context) {
	userID := c.Param("id")
	sessionData := mustSession(c)

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := roles.Parse(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent changing own role
	if userID == sessionData.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot change your own role"})
		return
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	notification := models.Notification{
		UserID:  &user.ID,
		Title:   "Permissões atualizadas",
		Message: fmt.Sprintf("Seu perfil de acesso agora é %s.", role),
		Type:    models.NotificationSystem,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("role", role).Error; err != nil {
			return err
		}
		return tx.Create(&notification).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to update role")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update role"})
		return
	}
	user.Role = role
	s.publish(c.Request.Context(), []models.Notification{notification})

	s.logger.Info().
		Str("user_id", user.ID).
		Str("role", string(role)).
		Str("changed_by", sessionData.UserID).
		Msg("User role changed")

	c.JSON(http.StatusOK, newUserDetail(&user))
}

// SystemStatus is the dev-admin view of the API host and its data
type SystemStatus struct {
	Version string           `json:"version"`
	Host    sysinfo.Metrics  `json:"host"`
	Counts  map[string]int64 `json:"counts"`
}

// @Summary System status
// @Description Host metrics, upload usage and row counts (dev-admin only)
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SystemStatus
// @Failure 403 {object} map[string]interface{}
// @Router /api/system/status [get]
func (s *Server) systemStatus(c *gin.Context) {
	ctx := c.Request.Context()

	metrics, err := sysinfo.GetMetrics(ctx, s.config.Server.UploadDir)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to collect system metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	tables := map[string]any{
		"users":         &models.User{},
		"events":        &models.Event{},
		"registrations": &models.Registration{},
		"challenges":    &models.Challenge{},
		"teams":         &models.Team{},
		"videos":        &models.Video{},
		"notifications": &models.Notification{},
	}
	counts := make(map[string]int64, len(tables))
	for name, model := range tables {
		var n int64
		if err := s.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
			s.logger.Error().Err(err).Str("table", name).Msg("Failed to count rows")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		counts[name] = n
	}

	c.JSON(http.StatusOK, SystemStatus{Version: s.version, Host: metrics, Counts: counts})
}
