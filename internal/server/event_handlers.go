package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
)

// EventRequest creates or updates an event
type EventRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Active      *bool      `json:"active"`
}

// UpdateRegistrationRequest changes a registration's status
type UpdateRegistrationRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed cancelled"`
}

func isStaff(c *gin.Context) bool {
	sessionData, ok := GetSessionData(c)
	return ok && guard.RoleAllowed(sessionData.Role, roles.Staff...)
}

// includeInactive reports whether a staff caller asked for inactive rows
func includeInactive(c *gin.Context) bool {
	return c.Query("all") == "true" && isStaff(c)
}

// findOr404 loads a row by the :id path param, writing 404/500 on failure
func findOr404[T any](s *Server, c *gin.Context, model *T, what string) bool {
	if err := models.FindByID(s.db, c.Param("id"), model); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
			return false
		}
		s.logger.Error().Err(err).Str("id", c.Param("id")).Msgf("Failed to find %s", what)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return false
	}
	return true
}

// @Summary List events
// @Description Active events ordered by start date. Staff may pass all=true.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Event
// @Router /api/events [get]
func (s *Server) listEvents(c *gin.Context) {
	query := s.db.Order("start_date ASC")
	if !includeInactive(c) {
		query = query.Where("active = ?", true)
	}

	var events []models.Event
	if err := query.Find(&events).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, events)
}

// @Summary Get event
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {object} models.Event
// @Failure 404 {object} map[string]interface{}
// @Router /api/events/{id} [get]
func (s *Server) getEvent(c *gin.Context) {
	var event models.Event
	if !findOr404(s, c, &event, "Event") {
		return
	}
	if !event.Active && !isStaff(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}
	c.JSON(http.StatusOK, event)
}

// @Summary Create event
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body EventRequest true "Event"
// @Success 201 {object} models.Event
// @Failure 400 {object} map[string]interface{}
// @Router /api/events [post]
func (s *Server) createEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == nil || req.StartDate == nil || req.EndDate == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title, start_date and end_date are required"})
		return
	}

	event := models.Event{
		Title:       *req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartDate:   *req.StartDate,
		EndDate:     *req.EndDate,
		Active:      req.Active == nil || *req.Active,
	}
	if event.EndDate.Before(event.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must not be before start_date"})
		return
	}

	if err := s.db.Create(&event).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create event"})
		return
	}

	s.logger.Info().Str("event_id", event.ID).Str("created_by", mustSession(c).UserID).Msg("Event created")
	c.JSON(http.StatusCreated, event)
}

// @Summary Update event
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Param request body EventRequest true "Fields to change"
// @Success 200 {object} models.Event
// @Router /api/events/{id} [patch]
func (s *Server) updateEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var event models.Event
	if !findOr404(s, c, &event, "Event") {
		return
	}

	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Description != nil {
		event.Description = req.Description
	}
	if req.Location != nil {
		event.Location = req.Location
	}
	if req.StartDate != nil {
		event.StartDate = *req.StartDate
		// A moved event gets a fresh reminder
		event.ReminderSentAt = nil
	}
	if req.EndDate != nil {
		event.EndDate = *req.EndDate
	}
	if req.Active != nil {
		event.Active = *req.Active
	}
	if event.EndDate.Before(event.StartDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must not be before start_date"})
		return
	}

	if err := s.db.Save(&event).Error; err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to update event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update event"})
		return
	}

	c.JSON(http.StatusOK, event)
}

// @Summary Delete event
// @Tags events
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 204
// @Router /api/events/{id} [delete]
func (s *Server) deleteEvent(c *gin.Context) {
	var event models.Event
	if !findOr404(s, c, &event, "Event") {
		return
	}

	if err := s.db.Delete(&event).Error; err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to delete event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete event"})
		return
	}

	s.logger.Info().Str("event_id", event.ID).Str("deleted_by", mustSession(c).UserID).Msg("Event deleted")
	c.Status(http.StatusNoContent)
}

// @Summary Register for event
// @Description Creates a pending registration for the caller
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 201 {object} models.Registration
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/events/{id}/registrations [post]
func (s *Server) registerForEvent(c *gin.Context) {
	sessionData := mustSession(c)

	var event models.Event
	if !findOr404(s, c, &event, "Event") {
		return
	}
	if !event.Active {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}
	if s.now().After(event.EndDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event has already ended"})
		return
	}

	var existing models.Registration
	err := s.db.Where("event_id = ? AND user_id = ?", event.ID, sessionData.UserID).First(&existing).Error
	switch {
	case err == nil && existing.Status != models.StatusCancelled:
		c.JSON(http.StatusConflict, gin.H{"error": "Already registered for this event"})
		return
	case err == nil:
		// Re-registering after a cancellation reopens the same row
		existing.Status = models.StatusPending
		if err := s.db.Save(&existing).Error; err != nil {
			s.logger.Error().Err(err).Msg("Failed to reopen registration")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register"})
			return
		}
		existing.Event = &event
		c.JSON(http.StatusCreated, existing)
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logger.Error().Err(err).Msg("Failed to check registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	registration := models.Registration{
		EventID: event.ID,
		UserID:  sessionData.UserID,
		Status:  models.StatusPending,
	}
	if err := s.db.Create(&registration).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register"})
		return
	}
	registration.Event = &event

	s.logger.Info().Str("event_id", event.ID).Str("user_id", sessionData.UserID).Msg("Registered for event")
	c.JSON(http.StatusCreated, registration)
}

// @Summary Cancel own registration
// @Tags registrations
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 204
// @Failure 404 {object} map[string]interface{}
// @Router /api/events/{id}/registrations [delete]
func (s *Server) cancelRegistration(c *gin.Context) {
	sessionData := mustSession(c)

	res := s.db.Model(&models.Registration{}).
		Where("event_id = ? AND user_id = ? AND status <> ?", c.Param("id"), sessionData.UserID, models.StatusCancelled).
		Update("status", models.StatusCancelled)
	if res.Error != nil {
		s.logger.Error().Err(res.Error).Msg("Failed to cancel registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel registration"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Registration not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary List own registrations
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Registration
// @Router /api/registrations [get]
func (s *Server) listMyRegistrations(c *gin.Context) {
	sessionData := mustSession(c)

	var registrations []models.Registration
	if err := s.db.Preload("Event").
		Where("user_id = ?", sessionData.UserID).
		Order("created_at DESC").
		Find(&registrations).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list registrations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, registrations)
}

// @Summary List an event's registrations
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {array} models.Registration
// @Router /api/events/{id}/registrations [get]
func (s *Server) listEventRegistrations(c *gin.Context) {
	var registrations []models.Registration
	if err := s.db.Where("event_id = ?", c.Param("id")).
		Order("created_at ASC").
		Find(&registrations).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list registrations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, registrations)
}

// @Summary Update registration status
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Param request body UpdateRegistrationRequest true "New status"
// @Success 200 {object} models.Registration
// @Router /api/registrations/{id} [patch]
func (s *Server) updateRegistration(c *gin.Context) {
	var req UpdateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var registration models.Registration
	if !findOr404(s, c, &registration, "Registration") {
		return
	}

	registration.Status = req.Status
	if err := s.db.Save(&registration).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update registration"})
		return
	}

	c.JSON(http.StatusOK, registration)
}
