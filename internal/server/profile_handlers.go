package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/models"
)

const maxPhotoSize = 5 << 20

var photoExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// UpdateProfileRequest is a partial profile update; nil fields are untouched
type UpdateProfileRequest struct {
	Name              *string `json:"name" validate:"omitempty,min=1,max=120"`
	Phone             *string `json:"phone" validate:"omitempty,max=40"`
	Church            *string `json:"church" validate:"omitempty,max=120"`
	ResponsiblePastor *string `json:"responsible_pastor" validate:"omitempty,max=120"`
	PhotoURL          *string `json:"photo_url" validate:"omitempty,url"`
}

// loadProfile returns the caller's profile, creating it from the account when missing
func (s *Server) loadProfile(userID string) (*models.Profile, error) {
	var profile models.Profile
	err := models.FindByID(s.db, userID, &profile)
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var user models.User
	if err := models.FindByID(s.db, userID, &user); err != nil {
		return nil, err
	}
	profile = models.Profile{ID: user.ID, Name: user.Name}
	if err := s.db.Create(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// @Summary Get profile
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Profile
// @Router /api/profile [get]
func (s *Server) getProfile(c *gin.Context) {
	sessionData := mustSession(c)

	profile, err := s.loadProfile(sessionData.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to load profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// @Summary Update profile
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} models.Profile
// @Failure 400 {object} map[string]interface{}
// @Router /api/profile [patch]
func (s *Server) updateProfile(c *gin.Context) {
	sessionData := mustSession(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := s.loadProfile(sessionData.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to load profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Church != nil {
		updates["church"] = *req.Church
	}
	if req.ResponsiblePastor != nil {
		updates["responsible_pastor"] = *req.ResponsiblePastor
	}
	if req.PhotoURL != nil {
		updates["photo_url"] = *req.PhotoURL
	}

	if len(updates) > 0 {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(profile).Updates(updates).Error; err != nil {
				return err
			}
			if name, ok := updates["name"]; ok {
				return tx.Model(&models.User{}).Where("id = ?", profile.ID).Update("name", name).Error
			}
			return nil
		})
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to update profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
			return
		}
	}

	if err := models.FindByID(s.db, profile.ID, profile); err != nil {
		s.logger.Error().Err(err).Msg("Failed to reload profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Str("user_id", sessionData.UserID).Int("fields", len(updates)).Msg("Profile updated")
	c.JSON(http.StatusOK, profile)
}

// @Summary Upload profile photo
// @Description Stores the image under /uploads/avatars and writes its public URL to photo_url
// @Tags profile
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image (jpg, png, gif, webp)"
// @Success 200 {object} models.Profile
// @Failure 400 {object} map[string]interface{}
// @Router /api/profile/photo [post]
func (s *Server) uploadProfilePhoto(c *gin.Context) {
	sessionData := mustSession(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPhotoSize+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file field is required"})
		return
	}
	if file.Size > maxPhotoSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo must be at most 5MB"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !photoExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported image type"})
		return
	}

	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate file name")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload photo"})
		return
	}
	name := fmt.Sprintf("%s-%s%s", sessionData.UserID, hex.EncodeToString(suffix), ext)

	dir := filepath.Join(s.config.Server.UploadDir, "avatars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error().Err(err).Str("dir", dir).Msg("Failed to create upload directory")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload photo"})
		return
	}
	if err := c.SaveUploadedFile(file, filepath.Join(dir, name)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save photo")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload photo"})
		return
	}

	profile, err := s.loadProfile(sessionData.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to load profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	publicURL := strings.TrimRight(s.config.Server.SiteURL, "/") + "/uploads/avatars/" + name
	if err := s.db.Model(profile).Update("photo_url", publicURL).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to store photo URL")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload photo"})
		return
	}
	profile.PhotoURL = &publicURL

	s.logger.Info().Str("user_id", sessionData.UserID).Str("file", name).Msg("Profile photo uploaded")
	c.JSON(http.StatusOK, profile)
}
