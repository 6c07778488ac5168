package dj

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/event"
	"Bt1QDJ/core/plugin"
	"Bt1QDJ/core/voice"
	"Bt1QDJ/model"
)

const testGuild = snowflake.ID(100)

func member() *model.Member {
	return &model.Member{ID: 7, GuildID: testGuild, Username: "dj"}
}

// fakeSource is an extractor with search, related and stream support, backed
// by fixed tables.
type fakeSource struct {
	name      string
	songs     map[string]*model.Song     // url -> song template
	lists     map[string]*model.Playlist // url -> playlist
	results   []model.SearchResult
	related   map[string][]model.RelatedSong // seed song id -> related
	streamErr map[string]error               // song id -> forced failure
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		name:      "fake",
		songs:     make(map[string]*model.Song),
		lists:     make(map[string]*model.Playlist),
		related:   make(map[string][]model.RelatedSong),
		streamErr: make(map[string]error),
	}
}

func (p *fakeSource) addSong(id string, restricted bool) string {
	url := "https://fake.test/" + id
	p.songs[url] = &model.Song{
		Source: "fake", ID: id, Name: "song " + id, URL: url,
		Duration: 60, AgeRestricted: restricted,
	}
	return url
}

func (p *fakeSource) Name() string                           { return p.name }
func (p *fakeSource) Type() model.PluginType                 { return model.PluginTypeExtractor }
func (p *fakeSource) Init(context.Context, *plugin.Env) error { return nil }

func (p *fakeSource) Validate(url string) bool {
	if _, ok := p.songs[url]; ok {
		return true
	}
	_, ok := p.lists[url]
	return ok
}

func (p *fakeSource) Resolve(_ context.Context, url string, opts model.ResolveOptions) (*plugin.Result, error) {
	if s, ok := p.songs[url]; ok {
		c := *s
		c.Member = opts.Member
		c.Metadata = opts.Metadata
		return &plugin.Result{Song: &c}, nil
	}
	if l, ok := p.lists[url]; ok {
		return &plugin.Result{Playlist: l}, nil
	}
	return nil, fmt.Errorf("%w: %q", model.ErrNoResult, url)
}

func (p *fakeSource) Search(_ context.Context, _ string, _ model.SearchResultType, limit int) ([]model.SearchResult, error) {
	if limit > len(p.results) {
		limit = len(p.results)
	}
	return p.results[:limit], nil
}

func (p *fakeSource) Related(_ context.Context, seed *model.Song) ([]model.RelatedSong, error) {
	return p.related[seed.ID], nil
}

func (p *fakeSource) StreamURL(_ context.Context, song *model.Song) (string, error) {
	if err := p.streamErr[song.ID]; err != nil {
		return "", err
	}
	return song.URL + "/stream", nil
}

// recordConn is a voice.Connection double that records every command.
type recordConn struct {
	mu      sync.Mutex
	played  []string
	params  []voice.PlayParams
	stops   int
	pauses  int
	resumes int
	volumes []int
}

func (c *recordConn) Play(_ context.Context, song *model.Song, params voice.PlayParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.played = append(c.played, song.ID)
	c.params = append(c.params, params)
	return nil
}

func (c *recordConn) Pause() error  { c.mu.Lock(); defer c.mu.Unlock(); c.pauses++; return nil }
func (c *recordConn) Resume() error { c.mu.Lock(); defer c.mu.Unlock(); c.resumes++; return nil }
func (c *recordConn) Stop() error   { c.mu.Lock(); defer c.mu.Unlock(); c.stops++; return nil }
func (c *recordConn) SetVolume(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volumes = append(c.volumes, v)
	return nil
}
func (c *recordConn) Close() error { return nil }

func (c *recordConn) playedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.played...)
}

func (c *recordConn) lastParams() (voice.PlayParams, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.params) == 0 {
		return voice.PlayParams{}, false
	}
	return c.params[len(c.params)-1], true
}

// memSettings is an in-memory SettingsStore.
type memSettings struct {
	mu sync.Mutex
	m  map[uint64]*model.GuildSettings
}

func (s *memSettings) GetSettings(_ context.Context, g snowflake.ID) (*model.GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[uint64(g)], nil
}

func (s *memSettings) SaveSettings(_ context.Context, gs *model.GuildSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[uint64]*model.GuildSettings)
	}
	s.m[gs.GuildID] = gs
	return nil
}

// memPlaylists is an in-memory PlaylistStore.
type memPlaylists struct {
	mu sync.Mutex
	m  map[string]*model.SavedPlaylist
}

func (p *memPlaylists) key(g snowflake.ID, name string) string {
	return g.String() + ":" + name
}

func (p *memPlaylists) SavePlaylist(_ context.Context, sp *model.SavedPlaylist) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*model.SavedPlaylist)
	}
	p.m[p.key(snowflake.ID(sp.GuildID), sp.Name)] = sp
	return nil
}

func (p *memPlaylists) GetPlaylist(_ context.Context, g snowflake.ID, name string) (*model.SavedPlaylist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.m[p.key(g, name)]
	if !ok {
		return nil, fmt.Errorf("playlist %q not found", name)
	}
	return sp, nil
}

func (p *memPlaylists) ListPlaylists(_ context.Context, g snowflake.ID) ([]*model.SavedPlaylist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*model.SavedPlaylist
	for _, sp := range p.m {
		if sp.GuildID == uint64(g) {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (p *memPlaylists) DeletePlaylist(_ context.Context, g snowflake.ID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, p.key(g, name))
	return nil
}

// newEngine builds an engine with the fake source registered, a recording
// connection joined and an event collector attached.
func newEngine(t *testing.T, cfg Config, src *fakeSource) (*Engine, *recordConn, chan event.Event) {
	t.Helper()
	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(e.Close)
	if src != nil {
		if err := e.RegisterPlugin(context.Background(), src); err != nil {
			t.Fatalf("RegisterPlugin() error = %v", err)
		}
	}
	conn := &recordConn{}
	if err := e.Join(testGuild, snowflake.ID(555), conn); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	ch := make(chan event.Event, 128)
	e.Bus().SubscribeAll(func(ev event.Event) { ch <- ev })
	return e, conn, ch
}

func nextEvent(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return event.Event{}
	}
}

func waitEvent(t *testing.T, ch <-chan event.Event, typ event.Type) event.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
		}
	}
}

// expectSequence asserts the next events arrive exactly in the given order.
func expectSequence(t *testing.T, ch <-chan event.Event, types ...event.Type) {
	t.Helper()
	for _, want := range types {
		if got := nextEvent(t, ch).Type; got != want {
			t.Fatalf("event = %q, want %q", got, want)
		}
	}
}

func TestPlayURLStartsQueue(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, conn, ch := newEngine(t, Config{}, src)

	if err := e.Play(context.Background(), testGuild, url, model.PlayOptions{Member: member()}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	expectSequence(t, ch, event.InitQueue, event.AddSong, event.PlaySong)

	if got := conn.playedIDs(); len(got) != 1 || got[0] != "a" {
		t.Errorf("connection played %v, want [a]", got)
	}
	params, ok := conn.lastParams()
	if !ok || params.Volume != model.DefaultVolume {
		t.Errorf("play params = %+v, want default volume", params)
	}

	snap, err := e.GetQueue(testGuild)
	if err != nil {
		t.Fatalf("GetQueue() error = %v", err)
	}
	cur := snap.Current()
	if cur == nil || cur.ID != "a" {
		t.Fatalf("current = %+v, want song a", cur)
	}
	if cur.StreamURL != url+"/stream" {
		t.Errorf("StreamURL = %q, want refreshed link", cur.StreamURL)
	}
}

func TestPlaySecondSongQueuesBehind(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	urlB := src.addSong("b", false)
	e, conn, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, urlA, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	expectSequence(t, ch, event.InitQueue, event.AddSong, event.PlaySong)

	if err := e.Play(ctx, testGuild, urlB, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}
	ev := nextEvent(t, ch)
	if ev.Type != event.AddSong {
		t.Fatalf("event = %q, want addSong", ev.Type)
	}
	data := ev.Data.(event.AddSongData)
	if data.Song.ID != "b" || len(data.Queue.Songs) != 2 {
		t.Errorf("addSong data = song %q queue len %d, want b / 2", data.Song.ID, len(data.Queue.Songs))
	}
	if got := conn.playedIDs(); len(got) != 1 {
		t.Errorf("connection played %v, second song must wait its turn", got)
	}
}

func TestEmitAddSongWhenCreatingQueueOff(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	opts := model.Options{EmitAddSongWhenCreatingQueue: model.Bool(false)}
	e, _, ch := newEngine(t, Config{Options: opts}, src)

	if err := e.Play(context.Background(), testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	expectSequence(t, ch, event.InitQueue, event.PlaySong)
}

func TestSkipAdvancesToNext(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	urlB := src.addSong("b", false)
	e, conn, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, urlA, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	if err := e.Play(ctx, testGuild, urlB, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}

	next, err := e.Skip(ctx, testGuild)
	if err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	if next == nil || next.ID != "b" {
		t.Fatalf("Skip() = %+v, want song b", next)
	}
	waitEvent(t, ch, event.FinishSong)
	waitEvent(t, ch, event.PlaySong)

	if got := conn.playedIDs(); len(got) != 2 || got[1] != "b" {
		t.Errorf("connection played %v, want [a b]", got)
	}
	conn.mu.Lock()
	stops := conn.stops
	conn.mu.Unlock()
	if stops == 0 {
		t.Error("skip never stopped the running stream")
	}
}

func TestSkipWithNothingUpNext(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, _, _ := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if _, err := e.Skip(ctx, testGuild); !errors.Is(err, model.ErrNoSong) {
		t.Errorf("Skip() error = %v, want ErrNoSong", err)
	}
}

func TestVoiceFinishAdvancesQueue(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	urlB := src.addSong("b", false)
	e, conn, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, urlA, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	if err := e.Play(ctx, testGuild, urlB, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}

	e.DispatchVoice(voice.Event{Type: voice.EventFinish, GuildID: testGuild})

	ev := waitEvent(t, ch, event.FinishSong)
	if data := ev.Data.(event.FinishSongData); data.Song.ID != "a" {
		t.Errorf("finishSong for %q, want a", data.Song.ID)
	}
	ev = waitEvent(t, ch, event.PlaySong)
	if data := ev.Data.(event.PlaySongData); data.Song.ID != "b" {
		t.Errorf("playSong for %q, want b", data.Song.ID)
	}
	if got := conn.playedIDs(); len(got) != 2 || got[1] != "b" {
		t.Errorf("connection played %v, want [a b]", got)
	}
}

func TestQueueDrainEmitsFinishAndKeepsQueue(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, _, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	e.DispatchVoice(voice.Event{Type: voice.EventFinish, GuildID: testGuild})

	waitEvent(t, ch, event.FinishSong)
	waitEvent(t, ch, event.Finish)

	snap, err := e.GetQueue(testGuild)
	if err != nil {
		t.Fatalf("queue must survive a natural drain, got %v", err)
	}
	if snap.Current() != nil || len(snap.PreviousSongs) != 1 {
		t.Errorf("drained queue = %d pending / %d previous, want 0/1", len(snap.Songs), len(snap.PreviousSongs))
	}
}

func TestRepeatModeSongReplays(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, conn, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := e.SetRepeatMode(ctx, testGuild, model.RepeatModeSong); err != nil {
		t.Fatalf("SetRepeatMode() error = %v", err)
	}

	e.DispatchVoice(voice.Event{Type: voice.EventFinish, GuildID: testGuild})
	waitEvent(t, ch, event.FinishSong)
	ev := waitEvent(t, ch, event.PlaySong)
	if data := ev.Data.(event.PlaySongData); data.Song.ID != "a" {
		t.Errorf("replayed %q, want a", data.Song.ID)
	}
	if got := conn.playedIDs(); len(got) != 2 || got[1] != "a" {
		t.Errorf("connection played %v, want [a a]", got)
	}
}

func TestEmitNewSongOnlySuppressesReplay(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	opts := model.Options{EmitNewSongOnly: model.Bool(true)}
	e, conn, ch := newEngine(t, Config{Options: opts}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitEvent(t, ch, event.PlaySong)
	if err := e.SetRepeatMode(ctx, testGuild, model.RepeatModeSong); err != nil {
		t.Fatalf("SetRepeatMode() error = %v", err)
	}

	e.DispatchVoice(voice.Event{Type: voice.EventFinish, GuildID: testGuild})
	waitEvent(t, ch, event.FinishSong)

	// the replay reaches the connection but playSong stays quiet
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(conn.playedIDs()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := conn.playedIDs(); len(got) != 2 {
		t.Fatalf("connection played %v, want the replay to happen", got)
	}
	select {
	case ev := <-ch:
		if ev.Type == event.PlaySong {
			t.Error("playSong emitted for a repeat despite EmitNewSongOnly")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAutoplayQueuesRelated(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	relURL := src.addSong("r", false)
	src.related["a"] = []model.RelatedSong{
		{ID: "a", Name: "song a", URL: url},          // the seed itself, must be skipped
		{ID: "r", Name: "song r", URL: relURL, Plugin: "fake"},
	}
	e, conn, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{Member: member()}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if _, err := e.ToggleAutoplay(ctx, testGuild); err != nil {
		t.Fatalf("ToggleAutoplay() error = %v", err)
	}

	e.DispatchVoice(voice.Event{Type: voice.EventFinish, GuildID: testGuild})
	waitEvent(t, ch, event.FinishSong)
	ev := waitEvent(t, ch, event.AddSong)
	if data := ev.Data.(event.AddSongData); data.Song.ID != "r" {
		t.Errorf("autoplay queued %q, want r", data.Song.ID)
	}
	ev = waitEvent(t, ch, event.PlaySong)
	if data := ev.Data.(event.PlaySongData); data.Song.ID != "r" || data.Song.Member == nil {
		t.Errorf("autoplay played %+v, want r with the seed's requester", data.Song)
	}
	if got := conn.playedIDs(); len(got) != 2 || got[1] != "r" {
		t.Errorf("connection played %v, want [a r]", got)
	}
}

func TestAutoplayNoRelated(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, _, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if _, err := e.ToggleAutoplay(ctx, testGuild); err != nil {
		t.Fatalf("ToggleAutoplay() error = %v", err)
	}

	e.DispatchVoice(voice.Event{Type: voice.EventFinish, GuildID: testGuild})
	waitEvent(t, ch, event.FinishSong)
	ev := nextEvent(t, ch)
	if ev.Type != event.NoRelated {
		t.Fatalf("event = %q, want noRelated", ev.Type)
	}
	select {
	case ev := <-ch:
		if ev.Type == event.Finish {
			t.Error("finish emitted although autoplay answered with noRelated")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopDestroysQueue(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, conn, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := e.Stop(ctx, testGuild); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitEvent(t, ch, event.DeleteQueue)

	if _, err := e.GetQueue(testGuild); !errors.Is(err, model.ErrNoQueue) {
		t.Errorf("GetQueue() after stop error = %v, want ErrNoQueue", err)
	}
	conn.mu.Lock()
	stops := conn.stops
	conn.mu.Unlock()
	if stops == 0 {
		t.Error("stop never reached the connection")
	}
	// LeaveOnStop defaults to true, so the session is gone too
	if err := e.Leave(testGuild); !errors.Is(err, model.ErrNoVoiceSession) {
		t.Errorf("Leave() after stop error = %v, want ErrNoVoiceSession", err)
	}
}

func TestDisconnectTearsDown(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, _, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	e.DispatchVoice(voice.Event{Type: voice.EventDisconnect, GuildID: testGuild})

	waitEvent(t, ch, event.Disconnect)
	waitEvent(t, ch, event.DeleteQueue)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := e.GetQueue(testGuild); errors.Is(err, model.ErrNoQueue) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("queue survived a voice disconnect")
}

func TestBrokenStreamSkipsToNext(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	src.addSong("b", false)
	src.streamErr["a"] = errors.New("upstream 403")
	urlB := "https://fake.test/b"

	e, conn, ch := newEngine(t, Config{}, src)
	ctx := context.Background()

	pl, err := model.NewPlaylist(model.PlaylistInfo{
		Source: "fake",
		Name:   "mix",
		Songs:  []*model.Song{src.songs[urlA], src.songs[urlB]},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewPlaylist() error = %v", err)
	}
	for _, s := range pl.Songs {
		s.Plugin = "fake"
	}
	if err := e.PlayList(ctx, testGuild, pl, model.PlayOptions{}); err != nil {
		t.Fatalf("PlayList() error = %v", err)
	}

	waitEvent(t, ch, event.Error)
	ev := waitEvent(t, ch, event.PlaySong)
	if data := ev.Data.(event.PlaySongData); data.Song.ID != "b" {
		t.Errorf("playSong for %q, want the unbroken b", data.Song.ID)
	}
	if got := conn.playedIDs(); len(got) != 1 || got[0] != "b" {
		t.Errorf("connection played %v, want [b]", got)
	}
}

func TestNSFWGate(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("x", true)
	e, _, _ := newEngine(t, Config{}, src)

	err := e.Play(context.Background(), testGuild, url, model.PlayOptions{})
	if !errors.Is(err, model.ErrNonNSFW) {
		t.Fatalf("Play() error = %v, want ErrNonNSFW", err)
	}
	if _, err := e.GetQueue(testGuild); !errors.Is(err, model.ErrNoQueue) {
		t.Error("blocked song still created a queue")
	}

	// the engine-wide option lifts the gate
	src2 := newFakeSource()
	url2 := src2.addSong("x", true)
	e2, _, _ := newEngine(t, Config{Options: model.Options{NSFW: model.Bool(true)}}, src2)
	if err := e2.Play(context.Background(), testGuild, url2, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() with NSFW option error = %v", err)
	}
}

func TestPlayListDropsRestrictedSongs(t *testing.T) {
	src := newFakeSource()
	src.addSong("clean", false)
	src.addSong("dirty", true)
	e, _, ch := newEngine(t, Config{}, src)

	pl, err := model.NewPlaylist(model.PlaylistInfo{
		Source: "fake",
		Name:   "mixed",
		Songs: []*model.Song{
			src.songs["https://fake.test/clean"],
			src.songs["https://fake.test/dirty"],
		},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewPlaylist() error = %v", err)
	}
	for _, s := range pl.Songs {
		s.Plugin = "fake"
	}
	if err := e.PlayList(context.Background(), testGuild, pl, model.PlayOptions{}); err != nil {
		t.Fatalf("PlayList() error = %v", err)
	}
	ev := waitEvent(t, ch, event.AddList)
	if data := ev.Data.(event.AddListData); len(data.Playlist.Songs) != 1 || data.Playlist.Songs[0].ID != "clean" {
		t.Errorf("queued playlist songs = %+v, want only the clean one", data.Playlist.Songs)
	}
}

func TestJumpForward(t *testing.T) {
	src := newFakeSource()
	urls := []string{
		src.addSong("a", false),
		src.addSong("b", false),
		src.addSong("c", false),
		src.addSong("d", false),
	}
	e, _, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	for _, u := range urls {
		if err := e.Play(ctx, testGuild, u, model.PlayOptions{}); err != nil {
			t.Fatalf("Play(%s) error = %v", u, err)
		}
	}
	waitEvent(t, ch, event.PlaySong) // a starts

	target, err := e.Jump(ctx, testGuild, 2)
	if err != nil {
		t.Fatalf("Jump(2) error = %v", err)
	}
	if target.ID != "c" {
		t.Fatalf("Jump(2) = %q, want c", target.ID)
	}
	waitEvent(t, ch, event.FinishSong)
	ev := waitEvent(t, ch, event.PlaySong)
	if data := ev.Data.(event.PlaySongData); data.Song.ID != "c" {
		t.Errorf("playSong for %q, want c", data.Song.ID)
	}

	snap, _ := e.GetQueue(testGuild)
	if cur := snap.Current(); cur == nil || cur.ID != "c" {
		t.Fatalf("current = %+v, want c", cur)
	}
	// a finished, b was jumped over: both live in history now
	if len(snap.PreviousSongs) != 2 {
		t.Errorf("previous = %d songs, want 2", len(snap.PreviousSongs))
	}
}

func TestPreviousRewinds(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	urlB := src.addSong("b", false)
	e, _, _ := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, urlA, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	if err := e.Play(ctx, testGuild, urlB, model.PlayOptions{}); err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}
	if _, err := e.Skip(ctx, testGuild); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}

	prev, err := e.Previous(ctx, testGuild)
	if err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if prev.ID != "a" {
		t.Fatalf("Previous() = %q, want a", prev.ID)
	}
	snap, _ := e.GetQueue(testGuild)
	if cur := snap.Current(); cur == nil || cur.ID != "a" {
		t.Errorf("current = %+v, want a", cur)
	}
	if len(snap.Songs) != 2 || snap.Songs[1].ID != "b" {
		t.Errorf("queue = %+v, the interrupted song must stay behind the rewound one", snap.Songs)
	}
}

func TestFreeTextPicksFirstResult(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("hit", false)
	src.results = []model.SearchResult{
		{Type: model.SearchResultVideo, ID: "hit", Name: "the hit", URL: url},
	}
	e, conn, _ := newEngine(t, Config{}, src)

	if err := e.Play(context.Background(), testGuild, "some song", model.PlayOptions{Member: member()}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if got := conn.playedIDs(); len(got) != 1 || got[0] != "hit" {
		t.Errorf("connection played %v, want [hit]", got)
	}
}

func TestInteractiveSearchFlow(t *testing.T) {
	src := newFakeSource()
	url1 := src.addSong("one", false)
	url2 := src.addSong("two", false)
	src.results = []model.SearchResult{
		{Type: model.SearchResultVideo, ID: "one", Name: "first", URL: url1},
		{Type: model.SearchResultVideo, ID: "two", Name: "second", URL: url2},
	}
	opts := model.Options{SearchSongs: 5}
	e, conn, ch := newEngine(t, Config{Options: opts}, src)

	ctx := context.Background()
	req := member()
	if err := e.Play(ctx, testGuild, "pick one", model.PlayOptions{Member: req, PlayHandlerOptions: model.PlayHandlerOptions{TextChannelID: 42}}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	ev := waitEvent(t, ch, event.SearchResult)
	if data := ev.Data.(event.SearchData); len(data.Results) != 2 || data.Query != "pick one" {
		t.Fatalf("searchResult data = %+v", data)
	}
	if got := conn.playedIDs(); len(got) != 0 {
		t.Fatalf("nothing may play before the user answers, got %v", got)
	}

	chosen, err := e.AnswerSearch(ctx, testGuild, req.ID, "2")
	if err != nil {
		t.Fatalf("AnswerSearch() error = %v", err)
	}
	if chosen.ID != "two" {
		t.Fatalf("chosen = %q, want two", chosen.ID)
	}
	waitEvent(t, ch, event.SearchDone)
	ev = waitEvent(t, ch, event.PlaySong)
	if data := ev.Data.(event.PlaySongData); data.Song.ID != "two" {
		t.Errorf("playSong for %q, want the chosen result", data.Song.ID)
	}
	// the queued song carries the original request's text channel
	snap, _ := e.GetQueue(testGuild)
	if snap.TextChannelID != 42 {
		t.Errorf("TextChannelID = %s, want 42 from the original request", snap.TextChannelID)
	}
}

func TestSearchNoResult(t *testing.T) {
	src := newFakeSource()
	opts := model.Options{SearchSongs: 5}
	e, _, ch := newEngine(t, Config{Options: opts}, src)

	err := e.Play(context.Background(), testGuild, "nothing matches", model.PlayOptions{Member: member()})
	if !errors.Is(err, model.ErrNoResult) {
		t.Fatalf("Play() error = %v, want ErrNoResult", err)
	}
	waitEvent(t, ch, event.SearchNoResult)
}

func TestSeekAndFilterRestartQuietly(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, conn, ch := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	waitEvent(t, ch, event.PlaySong)

	if err := e.Seek(ctx, testGuild, 30); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	params, _ := conn.lastParams()
	if params.Seek != 30 {
		t.Errorf("seek params = %+v, want Seek 30", params)
	}

	list, err := e.ApplyFilters(ctx, testGuild, "bassboost")
	if err != nil {
		t.Fatalf("ApplyFilters() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "bassboost" {
		t.Fatalf("filters = %+v, want bassboost", list)
	}
	params, _ = conn.lastParams()
	if params.FilterArgs != "bass=g=10" {
		t.Errorf("FilterArgs = %q, want the bassboost chain", params.FilterArgs)
	}

	// neither restart announced a new song
	select {
	case ev := <-ch:
		if ev.Type == event.PlaySong {
			t.Error("quiet restart emitted playSong")
		}
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := e.RemoveFilter(ctx, testGuild, "bassboost"); err != nil {
		t.Fatalf("RemoveFilter() error = %v", err)
	}
	if _, err := e.RemoveFilter(ctx, testGuild, "bassboost"); !errors.Is(err, model.ErrInvalidFilter) {
		t.Errorf("RemoveFilter() twice error = %v, want ErrInvalidFilter", err)
	}
}

func TestVolumeClampsAndReachesConnection(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	e, conn, _ := newEngine(t, Config{}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	got, err := e.SetVolume(ctx, testGuild, 999)
	if err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if got != 200 {
		t.Errorf("SetVolume(999) = %d, want clamp to 200", got)
	}
	conn.mu.Lock()
	volumes := append([]int{}, conn.volumes...)
	conn.mu.Unlock()
	if len(volumes) == 0 || volumes[len(volumes)-1] != 200 {
		t.Errorf("connection volumes = %v, want trailing 200", volumes)
	}
}

func TestEmptyChannelCooldown(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	opts := model.Options{EmptyCooldown: 30 * time.Millisecond}
	e, _, ch := newEngine(t, Config{Options: opts}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := e.VoiceStateUpdate(ctx, testGuild, 0); err != nil {
		t.Fatalf("VoiceStateUpdate() error = %v", err)
	}
	waitEvent(t, ch, event.Empty)
	waitEvent(t, ch, event.DeleteQueue)
}

func TestEmptyChannelCancelledByReturningListener(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	opts := model.Options{EmptyCooldown: 40 * time.Millisecond}
	e, _, ch := newEngine(t, Config{Options: opts}, src)

	ctx := context.Background()
	if err := e.Play(ctx, testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := e.VoiceStateUpdate(ctx, testGuild, 0); err != nil {
		t.Fatalf("VoiceStateUpdate(0) error = %v", err)
	}
	if err := e.VoiceStateUpdate(ctx, testGuild, 2); err != nil {
		t.Fatalf("VoiceStateUpdate(2) error = %v", err)
	}

	select {
	case ev := <-ch:
		switch ev.Type {
		case event.Empty, event.DeleteQueue:
			t.Fatalf("%q fired although a listener returned", ev.Type)
		}
	case <-time.After(120 * time.Millisecond):
	}
	if _, err := e.GetQueue(testGuild); err != nil {
		t.Errorf("queue gone after a cancelled cooldown: %v", err)
	}
}

func TestCreateCustomPlaylist(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	urlB := src.addSong("b", false)
	e, _, _ := newEngine(t, Config{}, src)

	direct := &model.Song{Source: "fake", ID: "direct", Name: "handed in", URL: "https://fake.test/direct", StreamURL: "https://cdn.test/direct"}
	inputs := []any{urlA, "https://fake.test/missing", direct, urlB}

	for name, parallel := range map[string]*bool{"parallel": nil, "sequential": model.Bool(false)} {
		t.Run(name, func(t *testing.T) {
			pl, err := e.CreateCustomPlaylist(context.Background(), inputs, model.CustomPlaylistOptions{
				Member:   member(),
				Name:     "my mix",
				Parallel: parallel,
			})
			if err != nil {
				t.Fatalf("CreateCustomPlaylist() error = %v", err)
			}
			if pl.Name != "my mix" || pl.Source != "custom" {
				t.Errorf("playlist meta = %q/%q, want my mix/custom", pl.Name, pl.Source)
			}
			ids := make([]string, len(pl.Songs))
			for i, s := range pl.Songs {
				ids[i] = s.ID
			}
			if len(ids) != 3 || ids[0] != "a" || ids[1] != "direct" || ids[2] != "b" {
				t.Errorf("songs = %v, want [a direct b] with the broken url dropped", ids)
			}
		})
	}

	if _, err := e.CreateCustomPlaylist(context.Background(), []any{"https://fake.test/missing"}, model.CustomPlaylistOptions{}); !errors.Is(err, model.ErrInvalidPlaylist) {
		t.Errorf("all-broken inputs error = %v, want ErrInvalidPlaylist", err)
	}
}

func TestSavedPlaylistsRoundTrip(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	store := &memPlaylists{}
	e, _, ch := newEngine(t, Config{Playlists: store}, src)

	ctx := context.Background()
	pl, err := e.CreateCustomPlaylist(ctx, []any{urlA}, model.CustomPlaylistOptions{Member: member(), Name: "keep"})
	if err != nil {
		t.Fatalf("CreateCustomPlaylist() error = %v", err)
	}
	if err := e.SaveCustomPlaylist(ctx, testGuild, "", pl); err != nil {
		t.Fatalf("SaveCustomPlaylist() error = %v", err)
	}

	listed, err := e.ListSavedPlaylists(ctx, testGuild)
	if err != nil || len(listed) != 1 || listed[0].Name != "keep" {
		t.Fatalf("ListSavedPlaylists() = %+v, %v", listed, err)
	}

	if err := e.PlaySavedPlaylist(ctx, testGuild, "keep", model.PlayOptions{Member: member()}); err != nil {
		t.Fatalf("PlaySavedPlaylist() error = %v", err)
	}
	ev := waitEvent(t, ch, event.AddList)
	if data := ev.Data.(event.AddListData); data.Playlist.Name != "keep" {
		t.Errorf("addList playlist = %q, want keep", data.Playlist.Name)
	}

	if err := e.DeleteSavedPlaylist(ctx, testGuild, "keep"); err != nil {
		t.Fatalf("DeleteSavedPlaylist() error = %v", err)
	}
	if err := e.PlaySavedPlaylist(ctx, testGuild, "keep", model.PlayOptions{}); err == nil {
		t.Error("PlaySavedPlaylist() after delete must fail")
	}
}

func TestGuildSettingsOverrides(t *testing.T) {
	src := newFakeSource()
	url := src.addSong("a", false)
	settings := &memSettings{m: map[uint64]*model.GuildSettings{
		uint64(testGuild): {
			GuildID:        uint64(testGuild),
			Volume:         sql.NullInt64{Int64: 80, Valid: true},
			DefaultFilters: "nightcore, earwax",
		},
	}}
	e, conn, _ := newEngine(t, Config{Settings: settings}, src)

	if err := e.Play(context.Background(), testGuild, url, model.PlayOptions{}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	snap, err := e.GetQueue(testGuild)
	if err != nil {
		t.Fatalf("GetQueue() error = %v", err)
	}
	if snap.Volume != 80 {
		t.Errorf("volume = %d, want the stored 80", snap.Volume)
	}
	if !snap.Filters.Has("nightcore") || !snap.Filters.Has("earwax") {
		t.Errorf("filters = %+v, want the stored defaults", snap.Filters)
	}
	params, _ := conn.lastParams()
	if params.Volume != 80 {
		t.Errorf("play params volume = %d, want 80", params.Volume)
	}
}

func TestPlaySongWithSkipOption(t *testing.T) {
	src := newFakeSource()
	urlA := src.addSong("a", false)
	urlB := src.addSong("b", false)
	urlC := src.addSong("c", false)
	e, conn, _ := newEngine(t, Config{}, src)

	ctx := context.Background()
	for _, u := range []string{urlA, urlB} {
		if err := e.Play(ctx, testGuild, u, model.PlayOptions{}); err != nil {
			t.Fatalf("Play(%s) error = %v", u, err)
		}
	}
	// Skip inserts right behind the playing song and jumps onto it
	if err := e.Play(ctx, testGuild, urlC, model.PlayOptions{PlayHandlerOptions: model.PlayHandlerOptions{Skip: true}}); err != nil {
		t.Fatalf("Play(c, skip) error = %v", err)
	}
	snap, _ := e.GetQueue(testGuild)
	if cur := snap.Current(); cur == nil || cur.ID != "c" {
		t.Fatalf("current = %+v, want the skipped-to c", cur)
	}
	if got := conn.playedIDs(); got[len(got)-1] != "c" {
		t.Errorf("connection played %v, want c last", got)
	}
}

