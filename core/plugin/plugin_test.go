package plugin

import (
	"context"
	"strings"
	"testing"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

// fakeExtractor validates URLs containing its marker.
type fakeExtractor struct {
	name   string
	marker string
	inited bool
}

func (f *fakeExtractor) Name() string           { return f.name }
func (f *fakeExtractor) Type() model.PluginType { return model.PluginTypeExtractor }
func (f *fakeExtractor) Init(_ context.Context, _ *Env) error {
	f.inited = true
	return nil
}
func (f *fakeExtractor) Validate(url string) bool { return strings.Contains(url, f.marker) }
func (f *fakeExtractor) Resolve(_ context.Context, url string, _ model.ResolveOptions) (*Result, error) {
	return &Result{Song: &model.Song{ID: url, Source: f.name}}, nil
}

// fakeCustom is a custom plugin matching the same marker as an extractor.
type fakeCustom struct {
	fakeExtractor
	played []string
}

func (f *fakeCustom) Type() model.PluginType { return model.PluginTypeCustom }
func (f *fakeCustom) Play(_ context.Context, _ snowflake.ID, url string, _ model.PlayOptions) error {
	f.played = append(f.played, url)
	return nil
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(Env{})
	ctx := context.Background()

	ext := &fakeExtractor{name: "alpha", marker: "alpha.com"}
	if err := r.Register(ctx, ext); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !ext.inited {
		t.Error("Register must call Init")
	}

	if err := r.Register(ctx, &fakeExtractor{name: "alpha", marker: "x"}); err == nil {
		t.Error("duplicate name accepted")
	}
	if err := r.Register(ctx, nil); err == nil {
		t.Error("nil plugin accepted")
	}

	p, ok := r.Get("alpha")
	if !ok || p != ext {
		t.Error("Get(alpha) did not return the registered plugin")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "alpha" {
		t.Errorf("Names() = %v", names)
	}
}

func TestRegistryForURLPrefersCustomAndOrder(t *testing.T) {
	r := NewRegistry(Env{})
	ctx := context.Background()

	first := &fakeExtractor{name: "first", marker: "shared"}
	second := &fakeExtractor{name: "second", marker: "shared"}
	custom := &fakeCustom{fakeExtractor: fakeExtractor{name: "custom", marker: "shared"}}

	// 注册顺序：extractor, extractor, custom；custom 仍应优先
	if err := r.Register(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(ctx, custom); err != nil {
		t.Fatal(err)
	}

	p, ok := r.ForURL("https://shared/x")
	if !ok {
		t.Fatal("ForURL found nothing")
	}
	if p.Name() != "custom" {
		t.Errorf("ForURL = %q, want custom plugins consulted first", p.Name())
	}

	// 没有 custom 命中时按注册顺序取第一个 extractor
	r2 := NewRegistry(Env{})
	if err := r2.Register(ctx, &fakeExtractor{name: "a", marker: "m"}); err != nil {
		t.Fatal(err)
	}
	if err := r2.Register(ctx, &fakeExtractor{name: "b", marker: "m"}); err != nil {
		t.Fatal(err)
	}
	p2, ok := r2.ForURL("https://m/x")
	if !ok || p2.Name() != "a" {
		t.Errorf("ForURL = %v, want first registered extractor", p2)
	}

	if _, ok := r2.ForURL("https://nomatch/x"); ok {
		t.Error("ForURL matched an unvalidated URL")
	}
}

func TestDirectLinkValidate(t *testing.T) {
	d := NewDirectLink()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/track.mp3", true},
		{"http://cdn.example.com/a/b/c.OPUS", true},
		{"https://cdn.example.com/track.flac?sig=abc", true},
		{"https://example.com/watch?v=abc", false},
		{"ftp://example.com/track.mp3", false},
		{"not a url", false},
		{"/local/track.mp3", false},
	}
	for _, tt := range tests {
		if got := d.Validate(tt.url); got != tt.want {
			t.Errorf("Validate(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestDirectLinkResolve(t *testing.T) {
	d := NewDirectLink()
	member := &model.Member{ID: 1, GuildID: 2}

	res, err := d.Resolve(context.Background(), "https://cdn.example.com/music/song.mp3",
		model.ResolveOptions{Member: member, Metadata: "m"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Playlist != nil {
		t.Error("direct link resolved to a playlist")
	}
	song := res.Song
	if song.Name != "song.mp3" {
		t.Errorf("Name = %q, want basename", song.Name)
	}
	if song.Source != "direct" || song.Plugin != "directlink" {
		t.Errorf("Source/Plugin = %q/%q", song.Source, song.Plugin)
	}
	if song.Member != member || song.Metadata != "m" {
		t.Error("resolve options not attached to song")
	}

	stream, err := d.StreamURL(context.Background(), song)
	if err != nil {
		t.Fatalf("StreamURL() error = %v", err)
	}
	if stream != song.URL {
		t.Errorf("StreamURL = %q, want the link itself", stream)
	}

	if _, err := d.Resolve(context.Background(), "https://example.com/page.html", model.ResolveOptions{}); err == nil {
		t.Error("Resolve accepted a non-media URL")
	}
}

func TestRegistryCapabilityLookup(t *testing.T) {
	r := NewRegistry(Env{})
	ctx := context.Background()

	if _, ok := r.Searcher(); ok {
		t.Error("empty registry reported a searcher")
	}
	if err := r.Register(ctx, NewDirectLink()); err != nil {
		t.Fatal(err)
	}
	// DirectLink 不支持搜索
	if _, ok := r.Searcher(); ok {
		t.Error("DirectLink must not be a searcher")
	}
	song := &model.Song{Plugin: "directlink", URL: "https://x/y.mp3"}
	if _, ok := r.StreamerFor(song); !ok {
		t.Error("StreamerFor must find DirectLink for its own songs")
	}
	if _, ok := r.RelatedFinderFor(song); ok {
		t.Error("DirectLink must not be a related finder")
	}
}
