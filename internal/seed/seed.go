// Package seed loads starter content (events, challenges, teams, videos)
// from a YAML file. Rows are matched by title or name, so applying the same
// file twice is a no-op.
package seed

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/youtube"
)

// File is the seed document
type File struct {
	Events     []Event     `yaml:"events"`
	Challenges []Challenge `yaml:"challenges"`
	Teams      []Team      `yaml:"teams"`
	Videos     []Video     `yaml:"videos"`
}

type Event struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Location    string    `yaml:"location"`
	StartDate   time.Time `yaml:"start_date"`
	EndDate     time.Time `yaml:"end_date"`
}

type Challenge struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Points      int    `yaml:"points"`
}

type Team struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	Mascot      string `yaml:"mascot"`
}

type Video struct {
	Title       string `yaml:"title"`
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

// Result counts the rows created
type Result struct {
	Events     int
	Challenges int
	Teams      int
	Videos     int
}

// Load parses a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Apply inserts every row of f that does not exist yet
func Apply(db *gorm.DB, f *File, logger zerolog.Logger) (Result, error) {
	var res Result

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, e := range f.Events {
			if e.EndDate.IsZero() {
				e.EndDate = e.StartDate
			}
			created, err := createMissing(tx, "title = ?", e.Title, &models.Event{
				Title:       e.Title,
				Description: optional(e.Description),
				Location:    optional(e.Location),
				StartDate:   e.StartDate,
				EndDate:     e.EndDate,
				Active:      true,
			})
			if err != nil {
				return fmt.Errorf("event %q: %w", e.Title, err)
			}
			res.Events += created
		}

		for _, ch := range f.Challenges {
			points := ch.Points
			if points == 0 {
				points = 10
			}
			created, err := createMissing(tx, "title = ?", ch.Title, &models.Challenge{
				Title:       ch.Title,
				Description: optional(ch.Description),
				Points:      points,
				Active:      true,
			})
			if err != nil {
				return fmt.Errorf("challenge %q: %w", ch.Title, err)
			}
			res.Challenges += created
		}

		for _, t := range f.Teams {
			created, err := createMissing(tx, "name = ?", t.Name, &models.Team{
				Name:        t.Name,
				Description: optional(t.Description),
				Color:       optional(t.Color),
				Mascot:      optional(t.Mascot),
			})
			if err != nil {
				return fmt.Errorf("team %q: %w", t.Name, err)
			}
			res.Teams += created
		}

		for _, v := range f.Videos {
			embed, err := youtube.EmbedURL(v.URL)
			if err != nil {
				return fmt.Errorf("video %q: %w", v.Title, err)
			}
			video := &models.Video{
				Title:       v.Title,
				Description: optional(v.Description),
				URL:         embed,
				Active:      true,
			}
			if thumb, err := youtube.ThumbnailURL(v.URL); err == nil {
				video.ThumbnailURL = &thumb
			}
			created, err := createMissing(tx, "title = ?", v.Title, video)
			if err != nil {
				return fmt.Errorf("video %q: %w", v.Title, err)
			}
			res.Videos += created
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	logger.Info().
		Int("events", res.Events).
		Int("challenges", res.Challenges).
		Int("teams", res.Teams).
		Int("videos", res.Videos).
		Msg("Seed applied")
	return res, nil
}

// createMissing inserts row unless a row matching where/key already exists
func createMissing[T any](tx *gorm.DB, where, key string, row *T) (int, error) {
	if key == "" {
		return 0, errors.New("missing title or name")
	}
	var existing T
	err := tx.Where(where, key).First(&existing).Error
	if err == nil {
		return 0, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	if err := tx.Create(row).Error; err != nil {
		return 0, err
	}
	return 1, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
