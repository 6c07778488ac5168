package model

import (
	"errors"
	"testing"
)

func TestNewPlaylistRejectsEmpty(t *testing.T) {
	_, err := NewPlaylist(PlaylistInfo{Name: "empty"}, nil, nil)
	if !errors.Is(err, ErrInvalidPlaylist) {
		t.Errorf("NewPlaylist() error = %v, want ErrInvalidPlaylist", err)
	}
}

func TestNewPlaylistFallbacks(t *testing.T) {
	member := &Member{ID: 1, GuildID: 2, Username: "alice"}
	info := PlaylistInfo{
		Source: "youtube",
		Songs: []*Song{
			{ID: "a", Name: "First Song", Thumbnail: "https://example.com/a.jpg", Duration: 100},
			{ID: "b", Name: "Second Song", Duration: 150.5},
		},
	}
	pl, err := NewPlaylist(info, member, "meta")
	if err != nil {
		t.Fatalf("NewPlaylist() error = %v", err)
	}
	if pl.Name != "First Song" {
		t.Errorf("Name = %q, want first song name as fallback", pl.Name)
	}
	if pl.Thumbnail != "https://example.com/a.jpg" {
		t.Errorf("Thumbnail = %q, want first song thumbnail", pl.Thumbnail)
	}
	for i, s := range pl.Songs {
		if s.Member != member {
			t.Errorf("Songs[%d].Member not propagated", i)
		}
		if s.Metadata != "meta" {
			t.Errorf("Songs[%d].Metadata not propagated", i)
		}
	}
	if got := pl.Duration(); got != 250.5 {
		t.Errorf("Duration() = %v, want 250.5", got)
	}
	if got := pl.FormattedDuration(); got != "04:10" {
		t.Errorf("FormattedDuration() = %q, want 04:10", got)
	}
}

func TestNewPlaylistUntitled(t *testing.T) {
	info := PlaylistInfo{Songs: []*Song{{ID: "a"}}}
	pl, err := NewPlaylist(info, nil, nil)
	if err != nil {
		t.Fatalf("NewPlaylist() error = %v", err)
	}
	if pl.Name != "Untitled Playlist" {
		t.Errorf("Name = %q, want Untitled Playlist", pl.Name)
	}
	if pl.Source != "unknown" {
		t.Errorf("Source = %q, want unknown", pl.Source)
	}
}
