package model

import "fmt"

// PlaylistInfo is raw playlist metadata from an extractor, parallel to
// SongInfo for single tracks.
type PlaylistInfo struct {
	Source    string  `json:"source"`
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	Thumbnail string  `json:"thumbnail"`
	Songs     []*Song `json:"songs"`
}

// Playlist is a normalized batch of songs queued as one unit.
type Playlist struct {
	Source    string  `json:"source"`
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name"`
	URL       string  `json:"url,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Songs     []*Song `json:"songs"`
	Member    *Member `json:"member,omitempty"`
	Metadata  any     `json:"-"`
}

// NewPlaylist validates info and fills display fields from the first song
// when the extractor left them empty. Member and Metadata propagate to every
// song so per-song events keep their requester.
func NewPlaylist(info PlaylistInfo, member *Member, metadata any) (*Playlist, error) {
	if len(info.Songs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlaylist, info.Name)
	}
	pl := &Playlist{
		Source:    firstNonEmpty(info.Source, "unknown"),
		ID:        info.ID,
		Name:      info.Name,
		URL:       info.URL,
		Thumbnail: info.Thumbnail,
		Songs:     info.Songs,
		Member:    member,
		Metadata:  metadata,
	}
	if pl.Name == "" {
		pl.Name = firstNonEmpty(info.Songs[0].Name, "Untitled Playlist")
	}
	if pl.Thumbnail == "" {
		pl.Thumbnail = info.Songs[0].Thumbnail
	}
	for _, s := range pl.Songs {
		s.Member = member
		s.Metadata = metadata
	}
	return pl, nil
}

// Duration is the total length of the playlist in seconds.
func (p *Playlist) Duration() float64 {
	var total float64
	for _, s := range p.Songs {
		total += s.Duration
	}
	return total
}

// FormattedDuration renders the total length like Song.FormattedDuration.
func (p *Playlist) FormattedDuration() string {
	return FormatDuration(p.Duration(), false)
}
