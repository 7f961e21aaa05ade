package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/youtube"
)

// CreateVideoRequest adds a YouTube video
type CreateVideoRequest struct {
	Title        string  `json:"title" binding:"required" validate:"max=200"`
	URL          string  `json:"url" binding:"required" validate:"youtube"`
	Description  *string `json:"description"`
	ThumbnailURL *string `json:"thumbnail_url" validate:"omitempty,url"`
}

// InteractionRequest sets like/watched flags; nil fields are untouched
type InteractionRequest struct {
	Liked   *bool `json:"liked"`
	Watched *bool `json:"watched"`
}

// @Summary List videos
// @Description Active videos, newest first, with like counts
// @Tags videos
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Video
// @Router /api/videos [get]
func (s *Server) listVideos(c *gin.Context) {
	var videos []models.Video
	if err := s.db.Where("active = ?", true).Order("created_at DESC").Find(&videos).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list videos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var counts []struct {
		VideoID string
		Likes   int64
	}
	if err := s.db.Model(&models.VideoInteraction{}).
		Select("video_id, COUNT(*) AS likes").
		Where("liked = ?", true).
		Group("video_id").
		Scan(&counts).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to count likes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	likes := make(map[string]int64, len(counts))
	for _, row := range counts {
		likes[row.VideoID] = row.Likes
	}
	for i := range videos {
		videos[i].Likes = likes[videos[i].ID]
	}

	c.JSON(http.StatusOK, videos)
}

// @Summary Add video
// @Description The link is normalized to its embed form. Only YouTube links are accepted.
// @Tags videos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateVideoRequest true "Video"
// @Success 201 {object} models.Video
// @Failure 400 {object} map[string]interface{}
// @Router /api/videos [post]
func (s *Server) createVideo(c *gin.Context) {
	sessionData := mustSession(c)

	var req CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only YouTube links are supported"})
		return
	}

	embed, err := youtube.EmbedURL(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only YouTube links are supported"})
		return
	}

	video := models.Video{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		URL:          embed,
		ThumbnailURL: req.ThumbnailURL,
		Active:       true,
		CreatedByID:  &sessionData.UserID,
	}
	if video.ThumbnailURL == nil {
		if thumb, err := youtube.ThumbnailURL(req.URL); err == nil {
			video.ThumbnailURL = &thumb
		}
	}

	if err := s.db.Create(&video).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add video"})
		return
	}

	s.logger.Info().Str("video_id", video.ID).Str("user_id", sessionData.UserID).Msg("Video added")
	c.JSON(http.StatusCreated, video)
}

// @Summary Delete video
// @Description Staff or the user who added it
// @Tags videos
// @Security BearerAuth
// @Param id path string true "Video ID"
// @Success 204
// @Failure 403 {object} map[string]interface{}
// @Router /api/videos/{id} [delete]
func (s *Server) deleteVideo(c *gin.Context) {
	sessionData := mustSession(c)

	var video models.Video
	if !findOr404(s, c, &video, "Video") {
		return
	}
	owner := video.CreatedByID != nil && *video.CreatedByID == sessionData.UserID
	if !owner && !isStaff(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the author or staff can remove this video"})
		return
	}

	if err := s.db.Delete(&video).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete video")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete video"})
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Get own interaction
// @Tags videos
// @Produce json
// @Security BearerAuth
// @Param id path string true "Video ID"
// @Success 200 {object} models.VideoInteraction
// @Router /api/videos/{id}/interaction [get]
func (s *Server) getVideoInteraction(c *gin.Context) {
	sessionData := mustSession(c)

	var interaction models.VideoInteraction
	err := s.db.Where("user_id = ? AND video_id = ?", sessionData.UserID, c.Param("id")).First(&interaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, models.VideoInteraction{UserID: sessionData.UserID, VideoID: c.Param("id")})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load interaction")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, interaction)
}

// @Summary Like or mark watched
// @Description Upserts the caller's interaction for the video
// @Tags videos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Video ID"
// @Param request body InteractionRequest true "Flags"
// @Success 200 {object} models.VideoInteraction
// @Router /api/videos/{id}/interaction [put]
func (s *Server) upsertVideoInteraction(c *gin.Context) {
	sessionData := mustSession(c)

	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Liked == nil && req.Watched == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "liked or watched is required"})
		return
	}

	var video models.Video
	if !findOr404(s, c, &video, "Video") {
		return
	}

	interaction := models.VideoInteraction{
		UserID:  sessionData.UserID,
		VideoID: video.ID,
		Liked:   req.Liked,
		Watched: req.Watched,
	}
	var columns []string
	if req.Liked != nil {
		columns = append(columns, "liked")
	}
	if req.Watched != nil {
		columns = append(columns, "watched")
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&interaction).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to save interaction")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save interaction"})
		return
	}

	// interaction still carries the ID generated for the insert; on conflict
	// the stored row keeps its own, so reload into a fresh value
	var saved models.VideoInteraction
	if err := s.db.Where("user_id = ? AND video_id = ?", sessionData.UserID, video.ID).First(&saved).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to reload interaction")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, saved)
}
