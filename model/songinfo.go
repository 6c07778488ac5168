package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SongInfo is raw extractor metadata before normalization. Field names and
// duplicated legacy/modern pairs mirror what scrapers actually emit, so a
// plugin can unmarshal upstream JSON straight into it.
//
// When both fields of a pair are set the plain (modern) one wins:
// Title over Name, Duration over LegacyDuration, IsLive over LegacyIsLive,
// Views over ViewCount, and so on.
type SongInfo struct {
	Source string `json:"src"`
	ID     string `json:"id"`

	Title string `json:"title"`
	Name  string `json:"name"` // legacy alias of Title

	Duration       float64 `json:"duration"`
	LegacyDuration float64 `json:"_duration"`

	IsLive       *bool `json:"isLive"`
	LegacyIsLive *bool `json:"is_live"`

	// WebpageURL is the canonical page, URL the direct media link. The
	// normalized Song.URL prefers the page and keeps the media link as
	// StreamURL.
	WebpageURL string `json:"webpage_url"`
	URL        string `json:"url"`

	Thumbnail string `json:"thumbnail"`

	Views     int64 `json:"views"`
	ViewCount int64 `json:"view_count"` // legacy alias of Views

	Likes     int64 `json:"likes"`
	LikeCount int64 `json:"like_count"`

	Dislikes     int64 `json:"dislikes"`
	DislikeCount int64 `json:"dislike_count"`

	Reposts     int64 `json:"reposts"`
	RepostCount int64 `json:"repost_count"`

	AgeLimit      int  `json:"age_limit"`
	AgeRestricted bool `json:"age_restricted"`

	Uploader UploaderInfo `json:"uploader"`
	Chapters []Chapter    `json:"chapters"`
	Related  []SongInfo   `json:"related"`
}

// UploaderInfo tolerates both upstream encodings of the uploader field:
// a bare name string or a {name,url} object.
type UploaderInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (u *UploaderInfo) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &u.Name)
	}
	type plain UploaderInfo
	return json.Unmarshal(b, (*plain)(u))
}

// Normalize collapses the legacy/modern field pairs into a Song. It is the
// single place extractor metadata becomes playable: every plugin result goes
// through here, so precedence rules live nowhere else.
//
// The info must yield a URL; the identifier falls back to the URL when the
// extractor did not set one. Live songs get duration 0.
func (in *SongInfo) Normalize() (*Song, error) {
	url := firstNonEmpty(in.WebpageURL, in.URL)
	if url == "" {
		return nil, fmt.Errorf("%w: no url in %q metadata", ErrInvalidSongInfo, in.Source)
	}
	id := in.ID
	if id == "" {
		id = url
	}

	live := false
	switch {
	case in.IsLive != nil:
		live = *in.IsLive
	case in.LegacyIsLive != nil:
		live = *in.LegacyIsLive
	}

	dur := in.Duration
	if dur == 0 {
		dur = in.LegacyDuration
	}
	if live {
		dur = 0
	}

	streamURL := ""
	if in.WebpageURL != "" && in.URL != "" && in.WebpageURL != in.URL {
		streamURL = in.URL
	}

	song := &Song{
		Source:            strings.ToLower(firstNonEmpty(in.Source, "unknown")),
		ID:                id,
		Name:              firstNonEmpty(in.Title, in.Name),
		URL:               url,
		StreamURL:         streamURL,
		Thumbnail:         in.Thumbnail,
		Duration:          dur,
		FormattedDuration: FormatDuration(dur, live),
		IsLive:            live,
		Views:             firstNonZero(in.Views, in.ViewCount),
		Likes:             firstNonZero(in.Likes, in.LikeCount),
		Dislikes:          firstNonZero(in.Dislikes, in.DislikeCount),
		Reposts:           firstNonZero(in.Reposts, in.RepostCount),
		AgeRestricted:     in.AgeRestricted || in.AgeLimit >= 18,
		Uploader:          Uploader{Name: in.Uploader.Name, URL: in.Uploader.URL},
		Chapters:          in.Chapters,
	}

	// Related entries are normalized shallowly; their own related lists are
	// dropped by the RelatedSong shape.
	for i := range in.Related {
		rel, err := in.Related[i].Normalize()
		if err != nil {
			continue // 相关曲目元数据残缺时跳过，不影响主曲目
		}
		song.Related = append(song.Related, NewRelatedSong(rel))
	}
	return song, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
