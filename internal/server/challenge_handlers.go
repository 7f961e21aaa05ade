package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/models"
)

const achievementChallenge = "challenge"

var errAlreadyReviewed = errors.New("submission already reviewed")

// ChallengeRequest creates or updates a challenge
type ChallengeRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description"`
	Points      *int    `json:"points" validate:"omitempty,min=0,max=10000"`
	Active      *bool   `json:"active"`
}

// SubmitChallengeRequest submits evidence for a challenge
type SubmitChallengeRequest struct {
	ChallengeID string  `json:"challenge_id" binding:"required"`
	Evidence    *string `json:"evidence"`
}

// ReviewRequest approves or rejects a submission
type ReviewRequest struct {
	Status string `json:"status" binding:"required,oneof=completed rejected"`
}

// ScoreboardEntry is one team's standing
type ScoreboardEntry struct {
	TeamID    string  `json:"team_id"`
	Name      string  `json:"name"`
	Color     *string `json:"color"`
	Points    int     `json:"points"`
	Completed int     `json:"completed"`
}

// @Summary List challenges
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Challenge
// @Router /api/challenges [get]
func (s *Server) listChallenges(c *gin.Context) {
	query := s.db.Order("created_at ASC")
	if !includeInactive(c) {
		query = query.Where("active = ?", true)
	}

	var challenges []models.Challenge
	if err := query.Find(&challenges).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list challenges")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, challenges)
}

// @Summary Create challenge
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChallengeRequest true "Challenge"
// @Success 201 {object} models.Challenge
// @Router /api/challenges [post]
func (s *Server) createChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	challenge := models.Challenge{
		Title:       *req.Title,
		Description: req.Description,
		Points:      10,
		Active:      req.Active == nil || *req.Active,
	}
	if req.Points != nil {
		challenge.Points = *req.Points
	}

	if err := s.db.Create(&challenge).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusCreated, challenge)
}

// @Summary Update challenge
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Challenge ID"
// @Param request body ChallengeRequest true "Fields to change"
// @Success 200 {object} models.Challenge
// @Router /api/challenges/{id} [patch]
func (s *Server) updateChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var challenge models.Challenge
	if !findOr404(s, c, &challenge, "Challenge") {
		return
	}
	if req.Title != nil {
		challenge.Title = *req.Title
	}
	if req.Description != nil {
		challenge.Description = req.Description
	}
	if req.Points != nil {
		challenge.Points = *req.Points
	}
	if req.Active != nil {
		challenge.Active = *req.Active
	}

	if err := s.db.Save(&challenge).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to update challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update challenge"})
		return
	}

	c.JSON(http.StatusOK, challenge)
}

// @Summary Delete challenge
// @Tags challenges
// @Security BearerAuth
// @Param id path string true "Challenge ID"
// @Success 204
// @Router /api/challenges/{id} [delete]
func (s *Server) deleteChallenge(c *gin.Context) {
	var challenge models.Challenge
	if !findOr404(s, c, &challenge, "Challenge") {
		return
	}
	if err := s.db.Delete(&challenge).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete challenge"})
		return
	}
	c.Status(http.StatusNoContent)
}

// approvedTeamID returns the team the user is an approved member of, or ""
func (s *Server) approvedTeamID(userID string) (string, error) {
	var member models.TeamMember
	err := s.db.Where("user_id = ? AND status = ?", userID, models.StatusApproved).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return member.TeamID, nil
}

// activeChallenge loads a challenge that accepts submissions
func (s *Server) activeChallenge(c *gin.Context, id string) (*models.Challenge, bool) {
	var challenge models.Challenge
	if err := models.FindByID(s.db, id, &challenge); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
			return nil, false
		}
		s.logger.Error().Err(err).Msg("Failed to find challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	if !challenge.Active {
		c.JSON(http.StatusNotFound, gin.H{"error": "Challenge not found"})
		return nil, false
	}
	return &challenge, true
}

// @Summary List team challenge submissions
// @Description Defaults to the caller's team. Staff may pass status=pending to review all teams.
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Param team_id query string false "Team ID"
// @Param status query string false "Filter by status"
// @Success 200 {array} models.TeamChallenge
// @Router /api/team-challenges [get]
func (s *Server) listTeamChallenges(c *gin.Context) {
	sessionData := mustSession(c)
	query := s.db.Preload("Challenge").Preload("Team").Order("created_at DESC")

	teamID := c.Query("team_id")
	switch {
	case teamID != "":
		query = query.Where("team_id = ?", teamID)
	case isStaff(c) && c.Query("status") != "":
		// review queue across all teams
	default:
		mine, err := s.approvedTeamID(sessionData.UserID)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to find team membership")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if mine == "" {
			c.JSON(http.StatusOK, []models.TeamChallenge{})
			return
		}
		query = query.Where("team_id = ?", mine)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var submissions []models.TeamChallenge
	if err := query.Find(&submissions).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list team challenges")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, submissions)
}

// @Summary Submit team challenge
// @Description Requires an approved team membership
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitChallengeRequest true "Submission"
// @Success 201 {object} models.TeamChallenge
// @Failure 403 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/team-challenges [post]
func (s *Server) submitTeamChallenge(c *gin.Context) {
	sessionData := mustSession(c)

	var req SubmitChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	teamID, err := s.approvedTeamID(sessionData.UserID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to find team membership")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if teamID == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "You must be an approved team member to submit team challenges"})
		return
	}

	challenge, ok := s.activeChallenge(c, req.ChallengeID)
	if !ok {
		return
	}

	var open int64
	if err := s.db.Model(&models.TeamChallenge{}).
		Where("team_id = ? AND challenge_id = ? AND status IN ?", teamID, challenge.ID, []string{models.StatusPending, models.StatusCompleted}).
		Count(&open).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check submissions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if open > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Your team already submitted this challenge"})
		return
	}

	submission := models.TeamChallenge{
		TeamID:      teamID,
		ChallengeID: challenge.ID,
		Status:      models.StatusPending,
		Evidence:    req.Evidence,
	}
	if err := s.db.Create(&submission).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create team challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit challenge"})
		return
	}
	submission.Challenge = challenge

	s.logger.Info().Str("team_id", teamID).Str("challenge_id", challenge.ID).Str("user_id", sessionData.UserID).Msg("Team challenge submitted")
	c.JSON(http.StatusCreated, submission)
}

// @Summary Review team challenge
// @Description Completing records a team achievement and notifies the team
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param request body ReviewRequest true "Decision"
// @Success 200 {object} models.TeamChallenge
// @Failure 409 {object} map[string]interface{}
// @Router /api/team-challenges/{id} [patch]
func (s *Server) reviewTeamChallenge(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var submission models.TeamChallenge
	if err := models.FindByIDWithPreload(s.db, c.Param("id"), &submission, "Challenge"); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find submission")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var notifications []models.Notification
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := s.now()
		updates := map[string]interface{}{"status": req.Status}
		if req.Status == models.StatusCompleted {
			updates["completed_at"] = now
		}
		res := tx.Model(&models.TeamChallenge{}).
			Where("id = ? AND status = ?", submission.ID, models.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyReviewed
		}

		if req.Status != models.StatusCompleted {
			return nil
		}

		achievement := models.TeamAchievement{
			TeamID:           submission.TeamID,
			Name:             submission.Challenge.Title,
			Description:      submission.Challenge.Description,
			AchievementType:  achievementChallenge,
			AchievementValue: submission.Challenge.Points,
		}
		if err := tx.Create(&achievement).Error; err != nil {
			return fmt.Errorf("failed to record achievement: %w", err)
		}

		var members []models.TeamMember
		if err := tx.Where("team_id = ? AND status = ?", submission.TeamID, models.StatusApproved).Find(&members).Error; err != nil {
			return err
		}
		for _, m := range members {
			notifications = append(notifications, models.Notification{
				UserID:  &m.UserID,
				Title:   "Desafio concluído!",
				Message: fmt.Sprintf("Sua equipe concluiu \"%s\" e ganhou %d pontos.", submission.Challenge.Title, submission.Challenge.Points),
				Type:    models.NotificationChallenge,
			})
		}
		if len(notifications) > 0 {
			return tx.Create(&notifications).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyReviewed) {
			c.JSON(http.StatusConflict, gin.H{"error": "Submission already reviewed"})
			return
		}
		s.logger.Error().Err(err).Str("submission_id", submission.ID).Msg("Failed to review team challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to review submission"})
		return
	}
	s.publish(c.Request.Context(), notifications)

	if err := models.FindByIDWithPreload(s.db, submission.ID, &submission, "Challenge"); err != nil {
		s.logger.Error().Err(err).Msg("Failed to reload submission")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	s.logger.Info().Str("submission_id", submission.ID).Str("status", req.Status).Str("reviewed_by", mustSession(c).UserID).Msg("Team challenge reviewed")
	c.JSON(http.StatusOK, submission)
}

// @Summary List personal challenge submissions
// @Description The caller's own. Staff may pass status to review everyone's.
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.UserChallenge
// @Router /api/user-challenges [get]
func (s *Server) listUserChallenges(c *gin.Context) {
	sessionData := mustSession(c)
	query := s.db.Preload("Challenge").Order("created_at DESC")

	status := c.Query("status")
	if !(isStaff(c) && status != "") {
		query = query.Where("user_id = ?", sessionData.UserID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var submissions []models.UserChallenge
	if err := query.Find(&submissions).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list user challenges")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, submissions)
}

// @Summary Submit personal challenge
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitChallengeRequest true "Submission"
// @Success 201 {object} models.UserChallenge
// @Failure 409 {object} map[string]interface{}
// @Router /api/user-challenges [post]
func (s *Server) submitUserChallenge(c *gin.Context) {
	sessionData := mustSession(c)

	var req SubmitChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, ok := s.activeChallenge(c, req.ChallengeID)
	if !ok {
		return
	}

	var open int64
	if err := s.db.Model(&models.UserChallenge{}).
		Where("user_id = ? AND challenge_id = ? AND status IN ?", sessionData.UserID, challenge.ID, []string{models.StatusPending, models.StatusCompleted}).
		Count(&open).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check submissions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if open > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "You already submitted this challenge"})
		return
	}

	submission := models.UserChallenge{
		UserID:      sessionData.UserID,
		ChallengeID: challenge.ID,
		Status:      models.StatusPending,
		Evidence:    req.Evidence,
	}
	if err := s.db.Create(&submission).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit challenge"})
		return
	}
	submission.Challenge = challenge

	c.JSON(http.StatusCreated, submission)
}

// @Summary Review personal challenge
// @Tags challenges
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param request body ReviewRequest true "Decision"
// @Success 200 {object} models.UserChallenge
// @Router /api/user-challenges/{id} [patch]
func (s *Server) reviewUserChallenge(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var submission models.UserChallenge
	if err := models.FindByIDWithPreload(s.db, c.Param("id"), &submission, "Challenge"); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find submission")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var notifications []models.Notification
	err := s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": req.Status}
		if req.Status == models.StatusCompleted {
			updates["completed_at"] = s.now()
		}
		res := tx.Model(&models.UserChallenge{}).
			Where("id = ? AND status = ?", submission.ID, models.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyReviewed
		}

		n := models.Notification{
			UserID: &submission.UserID,
			Title:  "Desafio avaliado",
			Type:   models.NotificationChallenge,
		}
		if req.Status == models.StatusCompleted {
			n.Message = fmt.Sprintf("Você concluiu \"%s\" e ganhou %d pontos.", submission.Challenge.Title, submission.Challenge.Points)
		} else {
			n.Message = fmt.Sprintf("Sua participação em \"%s\" não foi aprovada.", submission.Challenge.Title)
		}
		notifications = append(notifications, n)
		return tx.Create(&notifications).Error
	})
	if err != nil {
		if errors.Is(err, errAlreadyReviewed) {
			c.JSON(http.StatusConflict, gin.H{"error": "Submission already reviewed"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to review user challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to review submission"})
		return
	}
	s.publish(c.Request.Context(), notifications)

	if err := models.FindByIDWithPreload(s.db, submission.ID, &submission, "Challenge"); err != nil {
		s.logger.Error().Err(err).Msg("Failed to reload submission")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, submission)
}

// @Summary Team scoreboard
// @Description Sum of completed challenge points per team, highest first
// @Tags challenges
// @Produce json
// @Security BearerAuth
// @Success 200 {array} ScoreboardEntry
// @Router /api/scoreboard [get]
func (s *Server) scoreboard(c *gin.Context) {
	var entries []ScoreboardEntry
	err := s.db.Table("teams").
		Select("teams.id AS team_id, teams.name AS name, teams.color AS color, "+
			"COALESCE(SUM(challenges.points), 0) AS points, COUNT(challenges.id) AS completed").
		Joins("LEFT JOIN team_challenges ON team_challenges.team_id = teams.id AND team_challenges.status = ?", models.StatusCompleted).
		Joins("LEFT JOIN challenges ON challenges.id = team_challenges.challenge_id").
		Group("teams.id, teams.name, teams.color").
		Order("points DESC, teams.name ASC").
		Scan(&entries).Error
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to compute scoreboard")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if entries == nil {
		entries = []ScoreboardEntry{}
	}

	c.JSON(http.StatusOK, entries)
}
