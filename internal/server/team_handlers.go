package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/models"
)

var errAlreadyOnTeam = errors.New("user already belongs to a team")

// CreateTeamRequest creates a team
type CreateTeamRequest struct {
	Name        string  `json:"name" binding:"required,max=80"`
	Description *string `json:"description"`
	Color       *string `json:"color" validate:"omitempty,hexcolor"`
	Mascot      *string `json:"mascot"`
	LogoURL     *string `json:"logo_url" validate:"omitempty,url"`
}

// ReviewMemberRequest approves or rejects a membership request
type ReviewMemberRequest struct {
	Status string `json:"status" binding:"required,oneof=approved rejected"`
}

// TeamMemberDetail is a membership with the member's display name
type TeamMemberDetail struct {
	models.TeamMember
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// @Summary List teams
// @Tags teams
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Team
// @Router /api/teams [get]
func (s *Server) listTeams(c *gin.Context) {
	var teams []models.Team
	if err := s.db.Order("name ASC").Find(&teams).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list teams")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, teams)
}

// @Summary Get team
// @Tags teams
// @Produce json
// @Security BearerAuth
// @Param id path string true "Team ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/teams/{id} [get]
func (s *Server) getTeam(c *gin.Context) {
	var team models.Team
	if !findOr404(s, c, &team, "Team") {
		return
	}

	members, err := s.teamMembers(s.db.Where("team_members.team_id = ? AND team_members.status = ?", team.ID, models.StatusApproved), false)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list team members")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team":    team,
		"members": members,
	})
}

// @Summary Create team
// @Tags teams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTeamRequest true "Team"
// @Success 201 {object} models.Team
// @Failure 409 {object} map[string]interface{}
// @Router /api/teams [post]
func (s *Server) createTeam(c *gin.Context) {
	var req CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var count int64
	if err := s.db.Model(&models.Team{}).Where("name = ?", req.Name).Count(&count).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check team name")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "A team with this name already exists"})
		return
	}

	team := models.Team{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Mascot:      req.Mascot,
		LogoURL:     req.LogoURL,
	}
	if err := s.db.Create(&team).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create team")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create team"})
		return
	}

	s.logger.Info().Str("team_id", team.ID).Str("name", team.Name).Msg("Team created")
	c.JSON(http.StatusCreated, team)
}

// @Summary Delete team
// @Tags teams
// @Security BearerAuth
// @Param id path string true "Team ID"
// @Success 204
// @Router /api/teams/{id} [delete]
func (s *Server) deleteTeam(c *gin.Context) {
	var team models.Team
	if !findOr404(s, c, &team, "Team") {
		return
	}
	if err := s.db.Delete(&team).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete team")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete team"})
		return
	}
	s.logger.Info().Str("team_id", team.ID).Str("deleted_by", mustSession(c).UserID).Msg("Team deleted")
	c.Status(http.StatusNoContent)
}

// @Summary List team achievements
// @Tags teams
// @Produce json
// @Security BearerAuth
// @Param id path string true "Team ID"
// @Success 200 {array} models.TeamAchievement
// @Router /api/teams/{id}/achievements [get]
func (s *Server) listTeamAchievements(c *gin.Context) {
	var achievements []models.TeamAchievement
	if err := s.db.Where("team_id = ?", c.Param("id")).Order("achieved_at DESC").Find(&achievements).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to list achievements")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, achievements)
}

// @Summary Request to join team
// @Description Creates a pending membership. Refused while a pending or approved one exists.
// @Tags teams
// @Produce json
// @Security BearerAuth
// @Param id path string true "Team ID"
// @Success 201 {object} models.TeamMember
// @Failure 409 {object} map[string]interface{}
// @Router /api/teams/{id}/join [post]
func (s *Server) joinTeam(c *gin.Context) {
	sessionData := mustSession(c)

	var team models.Team
	if !findOr404(s, c, &team, "Team") {
		return
	}

	var open []models.TeamMember
	if err := s.db.Where("user_id = ? AND status IN ?", sessionData.UserID,
		[]string{models.StatusPending, models.StatusApproved}).Find(&open).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check memberships")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	for _, m := range open {
		if m.TeamID == team.ID && m.Status == models.StatusPending {
			c.JSON(http.StatusConflict, gin.H{"error": "Your request to join this team is pending"})
			return
		}
		if m.Status == models.StatusApproved {
			c.JSON(http.StatusConflict, gin.H{"error": "You are already a member of a team"})
			return
		}
	}

	member := models.TeamMember{
		TeamID: team.ID,
		UserID: sessionData.UserID,
		Status: models.StatusPending,
	}
	if err := s.db.Create(&member).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to create membership")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join team"})
		return
	}
	member.Team = &team

	s.logger.Info().Str("team_id", team.ID).Str("user_id", sessionData.UserID).Msg("Team join requested")
	c.JSON(http.StatusCreated, member)
}

// teamMembers joins memberships with profile names
func (s *Server) teamMembers(query *gorm.DB, withEmail bool) ([]TeamMemberDetail, error) {
	var rows []struct {
		models.TeamMember
		Name  string
		Email string
	}
	err := query.Model(&models.TeamMember{}).
		Select("team_members.*, COALESCE(profiles.name, users.name, '') AS name, COALESCE(users.email, '') AS email").
		Joins("LEFT JOIN profiles ON profiles.id = team_members.user_id").
		Joins("LEFT JOIN users ON users.id = team_members.user_id").
		Order("team_members.joined_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	// Scan does not preload associations, so attach the teams here
	teamIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		teamIDs = append(teamIDs, r.TeamID)
	}
	var teams []models.Team
	if len(teamIDs) > 0 {
		if err := s.db.Where("id IN ?", teamIDs).Find(&teams).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[string]*models.Team, len(teams))
	for i := range teams {
		byID[teams[i].ID] = &teams[i]
	}

	out := make([]TeamMemberDetail, len(rows))
	for i, r := range rows {
		out[i] = TeamMemberDetail{TeamMember: r.TeamMember, Name: r.Name}
		out[i].Team = byID[r.TeamID]
		if withEmail {
			out[i].Email = r.Email
		}
	}
	return out, nil
}

// @Summary List memberships
// @Description The caller's own memberships, or for staff any team_id/status filter
// @Tags teams
// @Produce json
// @Security BearerAuth
// @Param team_id query string false "Team ID (staff)"
// @Param status query string false "Status (staff)"
// @Success 200 {array} TeamMemberDetail
// @Router /api/team-members [get]
func (s *Server) listTeamMembers(c *gin.Context) {
	sessionData := mustSession(c)
	staff := isStaff(c)

	query := s.db
	teamID, status := c.Query("team_id"), c.Query("status")
	if staff && (teamID != "" || status != "") {
		if teamID != "" {
			query = query.Where("team_members.team_id = ?", teamID)
		}
		if status != "" {
			query = query.Where("team_members.status = ?", status)
		}
	} else {
		query = query.Where("team_members.user_id = ?", sessionData.UserID)
	}

	members, err := s.teamMembers(query, staff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list memberships")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, members)
}

// @Summary Review membership
// @Description Approve or reject a join request. A user holds at most one approved membership.
// @Tags teams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Membership ID"
// @Param request body ReviewMemberRequest true "Decision"
// @Success 200 {object} models.TeamMember
// @Failure 409 {object} map[string]interface{}
// @Router /api/team-members/{id} [patch]
func (s *Server) reviewTeamMember(c *gin.Context) {
	var req ReviewMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var member models.TeamMember
	if err := models.FindByIDWithPreload(s.db, c.Param("id"), &member, "Team"); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find membership")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var notification *models.Notification
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.Status == models.StatusApproved {
			var others int64
			if err := tx.Model(&models.TeamMember{}).
				Where("user_id = ? AND status = ? AND id <> ?", member.UserID, models.StatusApproved, member.ID).
				Count(&others).Error; err != nil {
				return err
			}
			if others > 0 {
				return errAlreadyOnTeam
			}
		}

		if err := tx.Model(&models.TeamMember{}).Where("id = ?", member.ID).Update("status", req.Status).Error; err != nil {
			return err
		}
		member.Status = req.Status

		n := models.Notification{
			UserID: &member.UserID,
			Title:  "Solicitação de equipe",
			Type:   models.NotificationSocial,
		}
		if req.Status == models.StatusApproved {
			n.Message = fmt.Sprintf("Você agora faz parte da equipe %s!", member.Team.Name)
		} else {
			n.Message = fmt.Sprintf("Sua solicitação para a equipe %s foi recusada.", member.Team.Name)
		}
		notification = &n
		return tx.Create(notification).Error
	})
	if err != nil {
		if errors.Is(err, errAlreadyOnTeam) {
			c.JSON(http.StatusConflict, gin.H{"error": "User is already an approved member of another team"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to review membership")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to review membership"})
		return
	}
	s.publish(c.Request.Context(), []models.Notification{*notification})

	s.logger.Info().Str("member_id", member.ID).Str("status", req.Status).Msg("Membership reviewed")
	c.JSON(http.StatusOK, member)
}
