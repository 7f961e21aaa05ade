// Package youtube normalizes shared video links to their embed form.
package youtube

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var ErrNotYouTube = errors.New("not a YouTube link")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// EmbedURL converts watch, short, shorts and embed links into
// https://www.youtube.com/embed/<id>
func EmbedURL(raw string) (string, error) {
	id, err := VideoID(raw)
	if err != nil {
		return "", err
	}
	return "https://www.youtube.com/embed/" + id, nil
}

// ThumbnailURL returns the default thumbnail for a video link
func ThumbnailURL(raw string) (string, error) {
	id, err := VideoID(raw)
	if err != nil {
		return "", err
	}
	return "https://img.youtube.com/vi/" + id + "/hqdefault.jpg", nil
}

// VideoID extracts the video ID from a YouTube link
func VideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrNotYouTube
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.Trim(u.Path, "/")

	var id string
	switch host {
	case "youtu.be":
		id = path
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case path == "watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "embed/"):
			id = strings.TrimPrefix(path, "embed/")
		case strings.HasPrefix(path, "shorts/"):
			id = strings.TrimPrefix(path, "shorts/")
		case strings.HasPrefix(path, "live/"):
			id = strings.TrimPrefix(path, "live/")
		}
	default:
		return "", ErrNotYouTube
	}

	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}
	if !idPattern.MatchString(id) {
		return "", ErrNotYouTube
	}
	return id, nil
}
