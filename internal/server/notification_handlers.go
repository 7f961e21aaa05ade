package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hds-conecte/conecte/internal/models"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
	streamKeepAlive          = 25 * time.Second
)

// CreateNotificationRequest sends a notification to one user or, without
// user_id, broadcasts it
type CreateNotificationRequest struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title" binding:"required,max=200"`
	Message string `json:"message" binding:"required"`
	Type    string `json:"type" binding:"required,oneof=event challenge social system"`
}

// publish pushes stored notifications to live subscribers
func (s *Server) publish(ctx context.Context, notifications []models.Notification) {
	for _, n := range notifications {
		if err := s.broker.Publish(ctx, n); err != nil {
			s.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("Failed to publish notification")
		}
	}
}

// readExpr is the caller's read state: a broadcast's comes from the receipt
const readExpr = "CASE WHEN notifications.user_id IS NULL THEN COALESCE(r.read, false) ELSE notifications.read END"

// visibleNotifications scopes the query to what userID sees: notifications
// addressed to them plus broadcasts they have not dismissed
func (s *Server) visibleNotifications(userID string) *gorm.DB {
	return s.db.Table("notifications").
		Select("notifications.id, notifications.created_at, notifications.user_id, notifications.title, "+
			"notifications.message, notifications.type, "+readExpr+" AS read").
		Joins("LEFT JOIN notification_receipts r ON r.notification_id = notifications.id AND r.user_id = ?", userID).
		Where("(notifications.user_id = ? OR (notifications.user_id IS NULL AND COALESCE(r.dismissed, false) = false))", userID)
}

// findVisible loads one notification the caller can see, writing a 404 when
// there is none
func (s *Server) findVisible(c *gin.Context, userID string) (*models.Notification, bool) {
	var n models.Notification
	if err := s.visibleNotifications(userID).Where("notifications.id = ?", c.Param("id")).Take(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return nil, false
		}
		s.logger.Error().Err(err).Msg("Failed to find notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return &n, true
}

// splitByAudience separates the caller's own rows from broadcasts
func splitByAudience(list []models.Notification) (own, broadcasts []string) {
	for _, n := range list {
		if n.IsBroadcast() {
			broadcasts = append(broadcasts, n.ID)
		} else {
			own = append(own, n.ID)
		}
	}
	return own, broadcasts
}

// markReceipts sets column (read or dismissed) on userID's receipts for the
// given broadcasts, creating the receipts as needed
func markReceipts(tx *gorm.DB, userID string, ids []string, column string) error {
	if len(ids) == 0 {
		return nil
	}
	receipts := make([]models.NotificationReceipt, len(ids))
	for i, id := range ids {
		receipts[i] = models.NotificationReceipt{
			NotificationID: id,
			UserID:         userID,
			Read:           column == receiptRead,
			Dismissed:      column == receiptDismissed,
		}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "notification_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
	}).Create(&receipts).Error
}

const (
	receiptRead      = "read"
	receiptDismissed = "dismissed"
)

// @Summary List notifications
// @Description The caller's notifications and broadcasts, newest first
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param type query string false "Filter by type"
// @Param unread query bool false "Only unread"
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {array} models.Notification
// @Router /api/notifications [get]
func (s *Server) listNotifications(c *gin.Context) {
	sessionData := mustSession(c)

	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	query := s.visibleNotifications(sessionData.UserID)
	if t := c.Query("type"); t != "" {
		query = query.Where("notifications.type = ?", t)
	}
	if c.Query("unread") == "true" {
		query = query.Where(readExpr+" = ?", false)
	}

	notifications := []models.Notification{}
	if err := query.Order("notifications.created_at DESC").Limit(limit).Scan(&notifications).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, notifications)
}

// @Summary Send notification
// @Description With user_id the notification goes to that user, otherwise it is a broadcast every user sees, including later signups
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateNotificationRequest true "Notification"
// @Success 201 {object} models.Notification
// @Failure 404 {object} map[string]interface{}
// @Router /api/notifications [post]
func (s *Server) createNotification(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	notification := models.Notification{
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
	}
	if req.UserID != "" {
		var user models.User
		if err := models.FindByID(s.db, req.UserID, &user); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			s.logger.Error().Err(err).Msg("Failed to resolve recipient")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		notification.UserID = &user.ID
	}

	if err := s.db.Create(&notification).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send notification"})
		return
	}
	s.publish(c.Request.Context(), []models.Notification{notification})

	s.logger.Info().
		Str("notification_id", notification.ID).
		Bool("broadcast", notification.IsBroadcast()).
		Str("type", req.Type).
		Str("sent_by", mustSession(c).UserID).
		Msg("Notification sent")

	c.JSON(http.StatusCreated, notification)
}

// @Summary Mark notification read
// @Tags notifications
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} map[string]interface{}
// @Router /api/notifications/{id}/read [patch]
func (s *Server) markNotificationRead(c *gin.Context) {
	sessionData := mustSession(c)

	n, ok := s.findVisible(c, sessionData.UserID)
	if !ok {
		return
	}

	var err error
	if n.IsBroadcast() {
		err = markReceipts(s.db, sessionData.UserID, []string{n.ID}, receiptRead)
	} else {
		err = s.db.Model(&models.Notification{}).Where("id = ?", n.ID).Update("read", true).Error
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to mark notification read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/notifications/read-all [post]
func (s *Server) markAllNotificationsRead(c *gin.Context) {
	sessionData := mustSession(c)

	var unread []models.Notification
	if err := s.visibleNotifications(sessionData.UserID).Where(readExpr+" = ?", false).Scan(&unread).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to load unread notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	own, broadcasts := splitByAudience(unread)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(own) > 0 {
			if err := tx.Model(&models.Notification{}).Where("id IN ?", own).Update("read", true).Error; err != nil {
				return err
			}
		}
		return markReceipts(tx, sessionData.UserID, broadcasts, receiptRead)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to mark notifications read")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(unread)})
}

// @Summary Delete notification
// @Description Deletes the caller's notification, or hides a broadcast from the caller only
// @Tags notifications
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} map[string]interface{}
// @Router /api/notifications/{id} [delete]
func (s *Server) deleteNotification(c *gin.Context) {
	sessionData := mustSession(c)

	n, ok := s.findVisible(c, sessionData.UserID)
	if !ok {
		return
	}

	var err error
	if n.IsBroadcast() {
		err = markReceipts(s.db, sessionData.UserID, []string{n.ID}, receiptDismissed)
	} else {
		err = s.db.Where("id = ?", n.ID).Delete(&models.Notification{}).Error
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Clear notifications
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/notifications [delete]
func (s *Server) clearNotifications(c *gin.Context) {
	sessionData := mustSession(c)

	var visible []models.Notification
	if err := s.visibleNotifications(sessionData.UserID).Scan(&visible).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to load notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	own, broadcasts := splitByAudience(visible)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(own) > 0 {
			if err := tx.Where("id IN ?", own).Delete(&models.Notification{}).Error; err != nil {
				return err
			}
		}
		return markReceipts(tx, sessionData.UserID, broadcasts, receiptDismissed)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(visible)})
}

// @Summary Stream notifications
// @Description Server-sent events: "notification" per new row, "ping" as keep-alive
// @Tags notifications
// @Produce text/event-stream
// @Security BearerAuth
// @Router /api/notifications/stream [get]
func (s *Server) streamNotifications(c *gin.Context) {
	sessionData := mustSession(c)
	ctx := c.Request.Context()

	feed, stop, err := s.broker.Subscribe(ctx, sessionData.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to subscribe to notifications")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Realtime updates unavailable"})
		return
	}
	defer stop()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"user_id": sessionData.UserID})
	c.Writer.Flush()

	s.logger.Debug().Str("user_id", sessionData.UserID).Msg("Notification stream opened")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-feed:
			if !ok {
				return false
			}
			c.SSEvent("notification", n)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})

	s.logger.Debug().Str("user_id", sessionData.UserID).Msg("Notification stream closed")
}
