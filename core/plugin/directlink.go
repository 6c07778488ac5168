package plugin

import (
	"context"
	"net/url"
	"path"
	"strings"

	"Bt1QDJ/model"
)

// audioExtensions lists the file extensions DirectLink treats as playable.
var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".ogg":  {},
	".oga":  {},
	".opus": {},
	".wav":  {},
	".flac": {},
	".m4a":  {},
	".aac":  {},
	".webm": {},
	".mp4":  {},
}

// DirectLink plays raw media URLs without any upstream site. It is
// registered automatically unless Options.DirectLink disables it.
type DirectLink struct{}

func NewDirectLink() *DirectLink { return &DirectLink{} }

func (*DirectLink) Name() string                    { return "directlink" }
func (*DirectLink) Type() model.PluginType          { return model.PluginTypeExtractor }
func (*DirectLink) Init(context.Context, *Env) error { return nil }

// Validate accepts absolute http(s) URLs whose path ends in a known audio
// extension.
func (*DirectLink) Validate(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := audioExtensions[ext]
	return ok
}

// Resolve builds a bare song from the URL itself; the filename becomes the
// display name. Direct files expose no duration without probing, so it
// stays 0.
func (d *DirectLink) Resolve(_ context.Context, raw string, opts model.ResolveOptions) (*Result, error) {
	if !d.Validate(raw) {
		return nil, model.ErrNoPlugin
	}
	u, _ := url.Parse(raw)
	name := path.Base(u.Path)

	info := model.SongInfo{
		Source: "direct",
		Title:  name,
		URL:    raw,
	}
	song, err := info.Normalize()
	if err != nil {
		return nil, err
	}
	song.Plugin = d.Name()
	song.Member = opts.Member
	song.Metadata = opts.Metadata
	return &Result{Song: song}, nil
}

// StreamURL: the link itself is the stream.
func (*DirectLink) StreamURL(_ context.Context, song *model.Song) (string, error) {
	if song == nil || song.URL == "" {
		return "", model.ErrInvalidSongInfo
	}
	return song.URL, nil
}
