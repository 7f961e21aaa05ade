package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/roles"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Status values shared by memberships, submissions and registrations
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Auth providers
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// Notification types
const (
	NotificationEvent     = "event"
	NotificationChallenge = "challenge"
	NotificationSocial    = "social"
	NotificationSystem    = "system"
)

// Config is the singleton row holding server secrets
type Config struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // Auto-generated on first start (64 hex chars)
}

// User is the identity record the auth endpoints issue sessions for
type User struct {
	BaseModel
	Email            string     `json:"email" gorm:"unique;not null"`
	PasswordHash     string     `json:"-"` // Empty for OAuth-only accounts
	Name             string     `json:"name"`
	Role             roles.Role `json:"role" gorm:"type:varchar(16);not null;default:user"`
	Provider         string     `json:"provider" gorm:"not null;default:email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Confirmed reports whether the account may sign in
func (u *User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Profile supplements the identity record; its ID equals the user ID
type Profile struct {
	ID                string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	Name              string    `json:"name" gorm:"not null"`
	Phone             *string   `json:"phone"`
	Church            *string   `json:"church"`
	ResponsiblePastor *string   `json:"responsible_pastor"`
	PhotoURL          *string   `json:"photo_url"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RefreshToken is a rotating opaque credential; only its hash is stored
type RefreshToken struct {
	BaseModel
	UserID    string     `json:"user_id" gorm:"index;not null"`
	FamilyID  string     `json:"family_id" gorm:"index;not null"` // Rotations of one sign-in share a family
	TokenHash string     `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at"`
}

// Auth token kinds
const (
	TokenPasswordReset     = "password_reset"
	TokenEmailConfirmation = "email_confirmation"
)

// AuthToken is a single-use emailed token (password reset or signup confirmation)
type AuthToken struct {
	BaseModel
	UserID    string     `json:"user_id" gorm:"index;not null"`
	Kind      string     `json:"kind" gorm:"not null"`
	TokenHash string     `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt    *time.Time `json:"used_at"`
}

// Event is something members can register for
type Event struct {
	BaseModel
	Title          string     `json:"title" gorm:"not null"`
	Description    *string    `json:"description"`
	Location       *string    `json:"location"`
	StartDate      time.Time  `json:"start_date" gorm:"not null;index"`
	EndDate        time.Time  `json:"end_date" gorm:"not null"`
	Active         bool       `json:"active" gorm:"not null"`
	ReminderSentAt *time.Time `json:"reminder_sent_at"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Registration links a user to an event
type Registration struct {
	BaseModel
	EventID string `json:"event_id" gorm:"not null;uniqueIndex:idx_registration_event_user"`
	UserID  string `json:"user_id" gorm:"not null;uniqueIndex:idx_registration_event_user"`
	Status  string `json:"status" gorm:"not null;default:pending"`

	Event *Event `json:"event,omitempty" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
}

// Challenge is a scored task of the gincana
type Challenge struct {
	BaseModel
	Title       string    `json:"title" gorm:"not null"`
	Description *string   `json:"description"`
	Points      int       `json:"points" gorm:"not null;default:10"`
	Active      bool      `json:"active" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TeamChallenge is a team's submission for a challenge
type TeamChallenge struct {
	BaseModel
	TeamID      string     `json:"team_id" gorm:"not null;index"`
	ChallengeID string     `json:"challenge_id" gorm:"not null;index"`
	Status      string     `json:"status" gorm:"not null;default:pending"`
	Evidence    *string    `json:"evidence"`
	CompletedAt *time.Time `json:"completed_at"`

	Team      *Team      `json:"team,omitempty" gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
	Challenge *Challenge `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID;constraint:OnDelete:CASCADE"`
}

// UserChallenge is an individual's submission for a challenge
type UserChallenge struct {
	BaseModel
	UserID      string     `json:"user_id" gorm:"not null;index"`
	ChallengeID string     `json:"challenge_id" gorm:"not null;index"`
	Status      string     `json:"status" gorm:"not null;default:pending"`
	Evidence    *string    `json:"evidence"`
	CompletedAt *time.Time `json:"completed_at"`

	Challenge *Challenge `json:"challenge,omitempty" gorm:"foreignKey:ChallengeID;constraint:OnDelete:CASCADE"`
}

// Team groups members competing together
type Team struct {
	BaseModel
	Name        string    `json:"name" gorm:"not null;unique"`
	Description *string   `json:"description"`
	Color       *string   `json:"color"`
	Mascot      *string   `json:"mascot"`
	LogoURL     *string   `json:"logo_url"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TeamMember is a membership request or approved membership
type TeamMember struct {
	BaseModel
	TeamID   string    `json:"team_id" gorm:"not null;index"`
	UserID   string    `json:"user_id" gorm:"not null;index"`
	Status   string    `json:"status" gorm:"not null;default:pending"`
	JoinedAt time.Time `json:"joined_at" gorm:"autoCreateTime"`

	Team *Team `json:"team,omitempty" gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
}

// TeamAchievement records a milestone reached by a team
type TeamAchievement struct {
	BaseModel
	TeamID           string    `json:"team_id" gorm:"not null;index"`
	Name             string    `json:"name" gorm:"not null"`
	Description      *string   `json:"description"`
	AchievementType  string    `json:"achievement_type" gorm:"not null"`
	AchievementValue int       `json:"achievement_value" gorm:"not null"`
	BadgeURL         *string   `json:"badge_url"`
	AchievedAt       time.Time `json:"achieved_at" gorm:"autoCreateTime"`

	Team *Team `json:"-" gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
}

// Video is a shared YouTube clip
type Video struct {
	BaseModel
	Title        string  `json:"title" gorm:"not null"`
	Description  *string `json:"description"`
	URL          string  `json:"url" gorm:"not null"` // Embed URL
	ThumbnailURL *string `json:"thumbnail_url"`
	Active       bool    `json:"active" gorm:"not null"`
	CreatedByID  *string `json:"created_by_id"`

	Likes int64 `json:"likes" gorm:"-"` // Populated by list queries
}

// VideoInteraction is one user's like/watched flags for a video
type VideoInteraction struct {
	BaseModel
	UserID  string `json:"user_id" gorm:"not null;uniqueIndex:idx_interaction_user_video"`
	VideoID string `json:"video_id" gorm:"not null;uniqueIndex:idx_interaction_user_video"`
	Liked   *bool  `json:"liked"`
	Watched *bool  `json:"watched"`

	Video *Video `json:"-" gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
}

// Notification is a message addressed to one user, or to every user when
// UserID is nil. A broadcast's Read is the reader's own state, kept in
// NotificationReceipt.
type Notification struct {
	BaseModel
	UserID  *string `json:"user_id" gorm:"index"`
	Title   string  `json:"title" gorm:"not null"`
	Message string  `json:"message" gorm:"not null"`
	Type    string  `json:"type" gorm:"not null"`
	Read    bool    `json:"read" gorm:"not null;default:false"`
}

// IsBroadcast reports whether n is addressed to every user
func (n *Notification) IsBroadcast() bool {
	return n.UserID == nil
}

// NotificationReceipt is one user's read and dismissed state of a broadcast
type NotificationReceipt struct {
	NotificationID string    `json:"notification_id" gorm:"primaryKey;type:varchar(26)"`
	UserID         string    `json:"user_id" gorm:"primaryKey;type:varchar(26)"`
	Read           bool      `json:"read" gorm:"not null"`
	Dismissed      bool      `json:"dismissed" gorm:"not null"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Notification *Notification `json:"-" gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	// Collect all models
	models := []interface{}{
		&Config{}, &User{}, &Profile{}, &RefreshToken{}, &AuthToken{},
		&Event{}, &Registration{},
		&Challenge{}, &Team{}, &TeamMember{}, &TeamChallenge{}, &UserChallenge{}, &TeamAchievement{},
		&Video{}, &VideoInteraction{},
		&Notification{}, &NotificationReceipt{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}

// FindByIDWithPreload finds a record by ID with preloading
func FindByIDWithPreload[T any](db *gorm.DB, id string, model *T, preloads ...string) error {
	query := db
	for _, preload := range preloads {
		query = query.Preload(preload)
	}
	return query.Where("id = ?", id).First(model).Error
}
