package model

import "fmt"

// Song is a playable track after normalization. Queue slot 0 is always the
// playing song, so a Song value doubles as "now playing" in events.
//
// Metadata is an opaque caller value attached at resolve time; the engine
// carries it through events untouched and never inspects it.
type Song struct {
	Source            string        `json:"source"`
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	URL               string        `json:"url"`
	StreamURL         string        `json:"streamUrl,omitempty"`
	Thumbnail         string        `json:"thumbnail,omitempty"`
	Duration          float64       `json:"duration"`
	FormattedDuration string        `json:"formattedDuration"`
	IsLive            bool          `json:"isLive"`
	Views             int64         `json:"views"`
	Likes             int64         `json:"likes"`
	Dislikes          int64         `json:"dislikes"`
	Reposts           int64         `json:"reposts"`
	AgeRestricted     bool          `json:"ageRestricted"`
	Uploader          Uploader      `json:"uploader"`
	Chapters          []Chapter     `json:"chapters,omitempty"`
	Related           []RelatedSong `json:"related,omitempty"`
	Member            *Member       `json:"member,omitempty"`
	Plugin            string        `json:"plugin,omitempty"`
	Metadata          any           `json:"-"`
}

// Chapter is a named segment inside a song, start time in seconds.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
}

// RelatedSong is a Song stripped of its own related list. Keeping the type
// separate stops related chains from nesting when songs are serialized.
type RelatedSong struct {
	Source            string    `json:"source"`
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	URL               string    `json:"url"`
	StreamURL         string    `json:"streamUrl,omitempty"`
	Thumbnail         string    `json:"thumbnail,omitempty"`
	Duration          float64   `json:"duration"`
	FormattedDuration string    `json:"formattedDuration"`
	IsLive            bool      `json:"isLive"`
	Views             int64     `json:"views"`
	Likes             int64     `json:"likes"`
	Dislikes          int64     `json:"dislikes"`
	Reposts           int64     `json:"reposts"`
	AgeRestricted     bool      `json:"ageRestricted"`
	Uploader          Uploader  `json:"uploader"`
	Chapters          []Chapter `json:"chapters,omitempty"`
	Plugin            string    `json:"plugin,omitempty"`
}

// NewRelatedSong copies every field of s except Related, Member and Metadata.
func NewRelatedSong(s *Song) RelatedSong {
	return RelatedSong{
		Source:            s.Source,
		ID:                s.ID,
		Name:              s.Name,
		URL:               s.URL,
		StreamURL:         s.StreamURL,
		Thumbnail:         s.Thumbnail,
		Duration:          s.Duration,
		FormattedDuration: s.FormattedDuration,
		IsLive:            s.IsLive,
		Views:             s.Views,
		Likes:             s.Likes,
		Dislikes:          s.Dislikes,
		Reposts:           s.Reposts,
		AgeRestricted:     s.AgeRestricted,
		Uploader:          s.Uploader,
		Chapters:          s.Chapters,
		Plugin:            s.Plugin,
	}
}

// Song promotes a related entry back to a full song, e.g. when autoplay
// decides to actually queue it.
func (r RelatedSong) Song() *Song {
	return &Song{
		Source:            r.Source,
		ID:                r.ID,
		Name:              r.Name,
		URL:               r.URL,
		StreamURL:         r.StreamURL,
		Thumbnail:         r.Thumbnail,
		Duration:          r.Duration,
		FormattedDuration: r.FormattedDuration,
		IsLive:            r.IsLive,
		Views:             r.Views,
		Likes:             r.Likes,
		Dislikes:          r.Dislikes,
		Reposts:           r.Reposts,
		AgeRestricted:     r.AgeRestricted,
		Uploader:          r.Uploader,
		Chapters:          r.Chapters,
		Plugin:            r.Plugin,
	}
}

// FormatDuration renders seconds as mm:ss, or hh:mm:ss past the hour mark.
// Live streams have no fixed length and render as "Live".
func FormatDuration(seconds float64, live bool) string {
	if live {
		return "Live"
	}
	if seconds <= 0 {
		return "00:00"
	}
	total := int(seconds)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
