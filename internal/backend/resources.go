package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
	"github.com/hds-conecte/conecte/internal/sysinfo"
)

// call performs an authenticated request and decodes the answer as T
func call[T any](ctx context.Context, c *Client, r request) (T, error) {
	var out T
	err := c.authed(ctx, r, &out)
	return out, err
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	return call[T](ctx, c, request{method: http.MethodGet, path: path, query: query})
}

func escape(id string) string {
	return url.PathEscape(id)
}

// Profile

// ProfileUpdate carries the profile fields to change; nil fields are kept
type ProfileUpdate struct {
	Name              *string `json:"name,omitempty"`
	Phone             *string `json:"phone,omitempty"`
	Church            *string `json:"church,omitempty"`
	ResponsiblePastor *string `json:"responsible_pastor,omitempty"`
	PhotoURL          *string `json:"photo_url,omitempty"`
}

// GetProfile returns the caller's profile
func (c *Client) GetProfile(ctx context.Context) (*models.Profile, error) {
	p, err := get[models.Profile](ctx, c, "/api/profile", nil)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile changes the caller's profile. A name change is mirrored on
// the account, so listeners get EventUserUpdated.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*models.Profile, error) {
	p, err := call[models.Profile](ctx, c, request{method: http.MethodPatch, path: "/api/profile", body: update})
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		if _, err := c.GetUser(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to reload user after profile update")
		}
		c.emit(EventUserUpdated, c.current())
	}
	return &p, nil
}

// UploadProfilePhoto sends an avatar image and returns the updated profile
func (c *Client) UploadProfilePhoto(ctx context.Context, filename string, r io.Reader) (*models.Profile, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotAuthenticated
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/profile/photo", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	var p models.Profile
	if err := c.sendRaw(req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Events & registrations

// EventInput carries event fields for create and update; nil fields are kept
type EventInput struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Active      *bool      `json:"active,omitempty"`
}

// ListEvents returns active events; staff may ask for inactive ones too
func (c *Client) ListEvents(ctx context.Context, includeInactive bool) ([]models.Event, error) {
	q := url.Values{}
	if includeInactive {
		q.Set("all", "true")
	}
	return get[[]models.Event](ctx, c, "/api/events", q)
}

func (c *Client) CreateEvent(ctx context.Context, in EventInput) (*models.Event, error) {
	e, err := call[models.Event](ctx, c, request{method: http.MethodPost, path: "/api/events", body: in})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id string, in EventInput) (*models.Event, error) {
	e, err := call[models.Event](ctx, c, request{method: http.MethodPatch, path: "/api/events/" + escape(id), body: in})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.authed(ctx, request{method: http.MethodDelete, path: "/api/events/" + escape(id)}, nil)
}

// RegisterForEvent creates a pending registration for the caller
func (c *Client) RegisterForEvent(ctx context.Context, eventID string) (*models.Registration, error) {
	r, err := call[models.Registration](ctx, c, request{method: http.MethodPost, path: "/api/events/" + escape(eventID) + "/registrations"})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) CancelRegistration(ctx context.Context, eventID string) error {
	return c.authed(ctx, request{method: http.MethodDelete, path: "/api/events/" + escape(eventID) + "/registrations"}, nil)
}

// ListMyRegistrations returns the caller's registrations with their events
func (c *Client) ListMyRegistrations(ctx context.Context) ([]models.Registration, error) {
	return get[[]models.Registration](ctx, c, "/api/registrations", nil)
}

func (c *Client) ListEventRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	return get[[]models.Registration](ctx, c, "/api/events/"+escape(eventID)+"/registrations", nil)
}

// SetRegistrationStatus moves a registration to pending, confirmed or cancelled
func (c *Client) SetRegistrationStatus(ctx context.Context, id, status string) (*models.Registration, error) {
	r, err := call[models.Registration](ctx, c, request{
		method: http.MethodPatch,
		path:   "/api/registrations/" + escape(id),
		body:   map[string]string{"status": status},
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Challenges

// ChallengeInput carries challenge fields for create and update
type ChallengeInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Points      *int    `json:"points,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// ScoreboardEntry is one team's total of completed challenge points
type ScoreboardEntry struct {
	TeamID    string  `json:"team_id"`
	Name      string  `json:"name"`
	Color     *string `json:"color"`
	Points    int     `json:"points"`
	Completed int     `json:"completed"`
}

// SubmissionFilter narrows challenge submission listings
type SubmissionFilter struct {
	TeamID string
	Status string
}

func (f SubmissionFilter) query() url.Values {
	q := url.Values{}
	if f.TeamID != "" {
		q.Set("team_id", f.TeamID)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	return q
}

func (c *Client) ListChallenges(ctx context.Context) ([]models.Challenge, error) {
	return get[[]models.Challenge](ctx, c, "/api/challenges", nil)
}

func (c *Client) CreateChallenge(ctx context.Context, in ChallengeInput) (*models.Challenge, error) {
	ch, err := call[models.Challenge](ctx, c, request{method: http.MethodPost, path: "/api/challenges", body: in})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) UpdateChallenge(ctx context.Context, id string, in ChallengeInput) (*models.Challenge, error) {
	ch, err := call[models.Challenge](ctx, c, request{method: http.MethodPatch, path: "/api/challenges/" + escape(id), body: in})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) DeleteChallenge(ctx context.Context, id string) error {
	return c.authed(ctx, request{method: http.MethodDelete, path: "/api/challenges/" + escape(id)}, nil)
}

type submissionBody struct {
	ChallengeID string  `json:"challenge_id"`
	Evidence    *string `json:"evidence,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListTeamChallenges returns team submissions visible to the caller
func (c *Client) ListTeamChallenges(ctx context.Context, f SubmissionFilter) ([]models.TeamChallenge, error) {
	return get[[]models.TeamChallenge](ctx, c, "/api/team-challenges", f.query())
}

// SubmitTeamChallenge records evidence for the caller's approved team
func (c *Client) SubmitTeamChallenge(ctx context.Context, challengeID, evidence string) (*models.TeamChallenge, error) {
	tc, err := call[models.TeamChallenge](ctx, c, request{
		method: http.MethodPost,
		path:   "/api/team-challenges",
		body:   submissionBody{ChallengeID: challengeID, Evidence: optional(evidence)},
	})
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

// ReviewTeamChallenge marks a pending team submission completed or rejected
func (c *Client) ReviewTeamChallenge(ctx context.Context, id, status string) (*models.TeamChallenge, error) {
	tc, err := call[models.TeamChallenge](ctx, c, request{
		method: http.MethodPatch,
		path:   "/api/team-challenges/" + escape(id),
		body:   map[string]string{"status": status},
	})
	if err != nil {
		return nil, err
	}
	return &tc, nil
}

func (c *Client) ListUserChallenges(ctx context.Context, status string) ([]models.UserChallenge, error) {
	return get[[]models.UserChallenge](ctx, c, "/api/user-challenges", SubmissionFilter{Status: status}.query())
}

// SubmitUserChallenge records a personal submission
func (c *Client) SubmitUserChallenge(ctx context.Context, challengeID, evidence string) (*models.UserChallenge, error) {
	uc, err := call[models.UserChallenge](ctx, c, request{
		method: http.MethodPost,
		path:   "/api/user-challenges",
		body:   submissionBody{ChallengeID: challengeID, Evidence: optional(evidence)},
	})
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

func (c *Client) ReviewUserChallenge(ctx context.Context, id, status string) (*models.UserChallenge, error) {
	uc, err := call[models.UserChallenge](ctx, c, request{
		method: http.MethodPatch,
		path:   "/api/user-challenges/" + escape(id),
		body:   map[string]string{"status": status},
	})
	if err != nil {
		return nil, err
	}
	return &uc, nil
}

func (c *Client) Scoreboard(ctx context.Context) ([]ScoreboardEntry, error) {
	return get[[]ScoreboardEntry](ctx, c, "/api/scoreboard", nil)
}

// Teams

// TeamInput carries the fields of a new team
type TeamInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Mascot      *string `json:"mascot,omitempty"`
	LogoURL     *string `json:"logo_url,omitempty"`
}

// TeamMember is a membership plus the member's display name
type TeamMember struct {
	models.TeamMember
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// TeamDetail is a team with its approved members
type TeamDetail struct {
	Team    models.Team  `json:"team"`
	Members []TeamMember `json:"members"`
}

// MemberFilter narrows membership listings; staff only
type MemberFilter struct {
	TeamID string
	Status string
}

func (c *Client) ListTeams(ctx context.Context) ([]models.Team, error) {
	return get[[]models.Team](ctx, c, "/api/teams", nil)
}

func (c *Client) GetTeam(ctx context.Context, id string) (*TeamDetail, error) {
	d, err := get[TeamDetail](ctx, c, "/api/teams/"+escape(id), nil)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) CreateTeam(ctx context.Context, in TeamInput) (*models.Team, error) {
	t, err := call[models.Team](ctx, c, request{method: http.MethodPost, path: "/api/teams", body: in})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTeam(ctx context.Context, id string) error {
	return c.authed(ctx, request{method: http.MethodDelete, path: "/api/teams/" + escape(id)}, nil)
}

func (c *Client) ListTeamAchievements(ctx context.Context, teamID string) ([]models.TeamAchievement, error) {
	return get[[]models.TeamAchievement](ctx, c, "/api/teams/"+escape(teamID)+"/achievements", nil)
}

// JoinTeam asks to join a team; the membership starts pending
func (c *Client) JoinTeam(ctx context.Context, teamID string) (*models.TeamMember, error) {
	m, err := call[models.TeamMember](ctx, c, request{method: http.MethodPost, path: "/api/teams/" + escape(teamID) + "/join"})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListTeamMembers returns the caller's memberships, or for staff the
// memberships matching f
func (c *Client) ListTeamMembers(ctx context.Context, f MemberFilter) ([]TeamMember, error) {
	q := url.Values{}
	if f.TeamID != "" {
		q.Set("team_id", f.TeamID)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	return get[[]TeamMember](ctx, c, "/api/team-members", q)
}

// ReviewTeamMember approves or rejects a membership request
func (c *Client) ReviewTeamMember(ctx context.Context, id, status string) (*models.TeamMember, error) {
	m, err := call[models.TeamMember](ctx, c, request{
		method: http.MethodPatch,
		path:   "/api/team-members/" + escape(id),
		body:   map[string]string{"status": status},
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Videos

// VideoInput carries the fields of a new video
type VideoInput struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Description  *string `json:"description,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
}

// Interaction sets like/watched flags; nil fields are kept
type Interaction struct {
	Liked   *bool `json:"liked,omitempty"`
	Watched *bool `json:"watched,omitempty"`
}

func (c *Client) ListVideos(ctx context.Context) ([]models.Video, error) {
	return get[[]models.Video](ctx, c, "/api/videos", nil)
}

// AddVideo shares a YouTube link; other links are rejected by the server
func (c *Client) AddVideo(ctx context.Context, in VideoInput) (*models.Video, error) {
	v, err := call[models.Video](ctx, c, request{method: http.MethodPost, path: "/api/videos", body: in})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) DeleteVideo(ctx context.Context, id string) error {
	return c.authed(ctx, request{method: http.MethodDelete, path: "/api/videos/" + escape(id)}, nil)
}

func (c *Client) GetVideoInteraction(ctx context.Context, videoID string) (*models.VideoInteraction, error) {
	vi, err := get[models.VideoInteraction](ctx, c, "/api/videos/"+escape(videoID)+"/interaction", nil)
	if err != nil {
		return nil, err
	}
	return &vi, nil
}

func (c *Client) SetVideoInteraction(ctx context.Context, videoID string, in Interaction) (*models.VideoInteraction, error) {
	vi, err := call[models.VideoInteraction](ctx, c, request{
		method: http.MethodPut,
		path:   "/api/videos/" + escape(videoID) + "/interaction",
		body:   in,
	})
	if err != nil {
		return nil, err
	}
	return &vi, nil
}

// Notifications

// NotificationFilter narrows the notification listing
type NotificationFilter struct {
	Type       string
	UnreadOnly bool
	Limit      int
}

// NotificationInput is a message sent by staff to one user or everyone
type NotificationInput struct {
	UserID  string `json:"user_id,omitempty"` // Empty broadcasts to all users
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	q := url.Values{}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.UnreadOnly {
		q.Set("unread", "true")
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return get[[]models.Notification](ctx, c, "/api/notifications", q)
}

// SendNotification stores a notification, a broadcast when in.UserID is empty
func (c *Client) SendNotification(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	n, err := call[models.Notification](ctx, c, request{method: http.MethodPost, path: "/api/notifications", body: in})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.authed(ctx, request{method: http.MethodPatch, path: "/api/notifications/" + escape(id) + "/read"}, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	out, err := call[struct {
		Updated int64 `json:"updated"`
	}](ctx, c, request{method: http.MethodPost, path: "/api/notifications/read-all"})
	return out.Updated, err
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.authed(ctx, request{method: http.MethodDelete, path: "/api/notifications/" + escape(id)}, nil)
}

func (c *Client) ClearNotifications(ctx context.Context) (int64, error) {
	out, err := call[struct {
		Deleted int64 `json:"deleted"`
	}](ctx, c, request{method: http.MethodDelete, path: "/api/notifications"})
	return out.Deleted, err
}

// Users

// ListUsers returns accounts, optionally filtered by a name/email search
func (c *Client) ListUsers(ctx context.Context, search string) ([]User, error) {
	q := url.Values{}
	if search != "" {
		q.Set("q", search)
	}
	return get[[]User](ctx, c, "/api/users", q)
}

// SetUserRole changes a user's stored role; dev-admin only
func (c *Client) SetUserRole(ctx context.Context, userID string, role roles.Role) (*User, error) {
	u, err := call[User](ctx, c, request{
		method: http.MethodPatch,
		path:   "/api/users/" + escape(userID) + "/role",
		body:   map[string]string{"role": string(role)},
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SystemStatus is the dev-admin view of the API host
type SystemStatus struct {
	Version string           `json:"version"`
	Host    sysinfo.Metrics  `json:"host"`
	Counts  map[string]int64 `json:"counts"`
}

// SystemStatus returns host metrics and row counts; dev-admin only
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	s, err := get[SystemStatus](ctx, c, "/api/system/status", nil)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
