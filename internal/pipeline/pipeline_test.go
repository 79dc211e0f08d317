package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streed/snap-notes/internal/compose"
	"github.com/streed/snap-notes/internal/config"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/extract"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/peers"
	"github.com/streed/snap-notes/internal/search"
	"github.com/streed/snap-notes/internal/store"
)

var captureTime = time.Date(2025, 8, 4, 14, 25, 12, 0, time.UTC)

type fakeAdapter struct {
	kind models.AdapterKind
	out  extract.Output
	err  error
}

func (f fakeAdapter) Kind() models.AdapterKind { return f.kind }

func (f fakeAdapter) Extract(ctx context.Context, _ models.Capture) (extract.Output, error) {
	return f.out, f.err
}

type fakeDispatcher struct {
	mu       sync.Mutex
	results  map[string]models.PeerResult
	requests []peers.Request
	// imageSeen records whether the staged image existed during dispatch.
	imageSeen bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req peers.Request, _ ...string) map[string]models.PeerResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if _, err := os.Stat(req.ImagePath); err == nil {
		f.imageSeen = true
	}
	return f.results
}

func (f *fakeDispatcher) HasEnabled() bool { return len(f.results) > 0 }

type failingIndexer struct{}

func (failingIndexer) Ingest(context.Context, *models.Note) error {
	return interrors.ErrIndexCorruption
}

// blockingDispatcher stands in for a peer that never answers before the
// pipeline timeout.
type blockingDispatcher struct{}

func (blockingDispatcher) Dispatch(ctx context.Context, _ peers.Request, _ ...string) map[string]models.PeerResult {
	<-ctx.Done()
	return map[string]models.PeerResult{
		"slow": {Peer: "slow", Status: models.PeerTimeout, Error: interrors.ErrPeerTimeout.Error()},
	}
}

func (blockingDispatcher) HasEnabled() bool { return true }

// blindStore hides existing pairs from reservation, the way files written
// by another process look to a run that reserved its id first.
type blindStore struct{ *store.Store }

func (blindStore) Exists(string) bool { return false }

type fixture struct {
	root  string
	store *store.Store
	index *search.Index
	peers *fakeDispatcher
	ext   *extract.Extractor
	// router and target default to peers and store.
	router Dispatcher
	target Store
}

func newFixture(t *testing.T, ocr fakeAdapter, peerResults map[string]models.PeerResult) (*fixture, func(...Option) *Orchestrator) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.DataDirectory = root

	st := store.New(root)
	ix, err := search.Open(cfg, st)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })

	f := &fixture{root: root, store: st, index: ix, peers: &fakeDispatcher{results: peerResults}}
	f.router, f.target = f.peers, st
	f.ext = extract.New(
		extract.Binding{Adapter: ocr, Enabled: true, Timeout: time.Second},
		extract.Binding{Adapter: fakeAdapter{kind: models.KindVLM}, Enabled: false},
	)
	build := func(opts ...Option) *Orchestrator {
		return New(f.ext, f.router, compose.New([]string{"screenshot"}, 0.6), f.target, ix, opts...)
	}
	return f, build
}

func goodOCR(text string) fakeAdapter {
	conf := 0.92
	return fakeAdapter{kind: models.KindOCR, out: extract.Output{Text: text, Confidence: &conf}}
}

func testCapture() models.Capture {
	return models.NewCapture([]byte("\x89PNG fake"), captureTime, nil, "test")
}

func TestProcessQuarterlyReview(t *testing.T) {
	f, build := newFixture(t, goodOCR("Quarterly Review"), map[string]models.PeerResult{
		"excel": {Peer: "excel", Status: models.PeerOK, Payload: map[string]any{"rows_exported": 12}},
	})

	var states []State
	o := build(WithObserver(func(_ string, s State) { states = append(states, s) }))

	res, err := o.Process(context.Background(), testCapture(), Options{Tags: []string{"Finance"}})
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, res.State)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []State{StateIdle, StateExtracting, StatePostProcessing, StateComposing, StatePersisting, StateIndexed}, states)

	want := filepath.Join(f.root, "2025", "08", "04", "20250804_142512.md")
	assert.Equal(t, want, res.Path)
	assert.FileExists(t, want)
	assert.FileExists(t, filepath.Join(f.root, "2025", "08", "04", "20250804_142512.png"))

	body := res.Note.Body
	assert.Contains(t, body, compose.HeadingOCR+"\n\nConfidence: 92%")
	assert.Contains(t, body, "Quarterly Review")
	assert.NotContains(t, body, compose.HeadingVLM)
	assert.Contains(t, body, "## excel")
	assert.Contains(t, body, `"rows_exported": 12`)
	assert.Equal(t, []string{"finance", "screenshot"}, res.Note.Tags)

	require.Len(t, f.peers.requests, 1)
	req := f.peers.requests[0]
	assert.Equal(t, "Quarterly Review", req.OCRText)
	assert.Equal(t, want, req.MarkdownPath)
	assert.Equal(t, []string{"finance", "screenshot"}, req.Tags)
	assert.True(t, f.peers.imageSeen, "peers should see the staged image")
	assert.NoFileExists(t, req.ImagePath, "staged image is removed after dispatch")

	hits, err := f.index.Search(context.Background(), search.Query{Text: "quarterly review"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "20250804_142512", hits[0].ID)
	assert.Contains(t, hits[0].Text, "Quarterly Review")
}

func TestProcessOCRUnavailable(t *testing.T) {
	ocr := fakeAdapter{kind: models.KindOCR, err: errors.New("tesseract: executable file not found")}
	_, build := newFixture(t, ocr, nil)

	res, err := build().Process(context.Background(), testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, res.State)
	assert.Contains(t, res.Note.Body, compose.MarkerOCRUnavailable)
	assert.ErrorIs(t, res.Extraction[models.KindOCR].Cause, interrors.ErrAdapterUnavailable)
}

func TestProcessDiskFailure(t *testing.T) {
	f, build := newFixture(t, goodOCR("text"), nil)
	// A plain file where the year directory belongs makes the write fail.
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "2025"), []byte("x"), 0o644))

	res, err := build().Process(context.Background(), testCapture(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, interrors.ErrPersistence)
	var perr *interrors.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "20250804_142512", perr.NoteID)
	assert.Equal(t, StateFailed, res.State)
	assert.NoDirExists(t, filepath.Join(f.root, "2025", "08", "04"))

	var visible []string
	require.NoError(t, f.store.Walk(func(path string) error {
		visible = append(visible, path)
		return nil
	}))
	assert.Empty(t, visible)
}

func TestProcessSameSecondCollision(t *testing.T) {
	f, build := newFixture(t, goodOCR("text"), nil)
	o := build()

	var wg sync.WaitGroup
	results := make([]*Result, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Process(context.Background(), testCapture(), Options{})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, res := range results {
		require.NotNil(t, res.Note)
		ids[res.Note.ID] = true
	}
	assert.Equal(t, map[string]bool{
		"20250804_142512":   true,
		"20250804_142512_1": true,
		"20250804_142512_2": true,
	}, ids)

	// An id already on disk is never reused.
	res, err := o.Process(context.Background(), testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "20250804_142512_3", res.Note.ID)

	stats, err := f.index.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.EntryCount)
}

func TestProcessIDTakenByAnotherWriter(t *testing.T) {
	f, build := newFixture(t, goodOCR("text"), nil)
	theirs := &models.Note{ID: "20250804_142512", Title: "theirs", Created: captureTime, Body: "# theirs\n"}
	_, err := f.store.WritePair(theirs, []byte("their png"))
	require.NoError(t, err)
	f.target = blindStore{f.store}

	res, err := build().Process(context.Background(), testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, res.State)
	assert.Equal(t, "20250804_142512_1", res.Note.ID)
	assert.Equal(t, "20250804_142512_1.png", res.Note.Image)
	assert.Contains(t, res.Note.Body, "20250804_142512_1.png")
	assert.Equal(t, filepath.Join(f.root, "2025", "08", "04", "20250804_142512_1.md"), res.Path)

	kept, err := f.store.Get("20250804_142512")
	require.NoError(t, err)
	assert.Equal(t, "theirs", kept.Title)
	img, err := os.ReadFile(f.store.ImagePath(kept))
	require.NoError(t, err)
	assert.Equal(t, "their png", string(img))
}

func TestProcessSharedRootSameSecond(t *testing.T) {
	f, build := newFixture(t, goodOCR("text"), nil)
	first := build()
	second := New(f.ext, nil, compose.New(nil, 0), store.New(f.root), f.index)

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]*Result, 2)
	for i, o := range []*Orchestrator{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := o.Process(context.Background(), testCapture(), Options{})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	close(start)
	wg.Wait()

	ids := map[string]bool{}
	for _, res := range results {
		require.NotNil(t, res)
		require.NotNil(t, res.Note)
		ids[res.Note.ID] = true
	}
	assert.Equal(t, map[string]bool{"20250804_142512": true, "20250804_142512_1": true}, ids)

	entries, err := os.ReadDir(filepath.Join(f.root, "2025", "08", "04"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"20250804_142512.md", "20250804_142512.png",
		"20250804_142512_1.md", "20250804_142512_1.png",
	}, names)
}

func TestProcessPipelineTimeoutDegrades(t *testing.T) {
	f, build := newFixture(t, goodOCR("Quarterly Review"), nil)
	f.router = blockingDispatcher{}

	res, err := build(WithTimeout(100*time.Millisecond)).Process(context.Background(), testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, res.State)
	assert.Equal(t, models.PeerTimeout, res.Peers["slow"].Status)
	assert.Contains(t, res.Note.Body, "- **slow**: timeout")
	assert.Contains(t, res.Note.Body, "Quarterly Review")
	assert.FileExists(t, res.Path)
}

func TestProcessCancelledBeforePersisting(t *testing.T) {
	f, build := newFixture(t, goodOCR("text"), map[string]models.PeerResult{
		"excel": {Peer: "excel", Status: models.PeerOK},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := build(WithObserver(func(_ string, s State) {
		if s == StatePostProcessing {
			cancel()
		}
	}))

	res, err := o.Process(ctx, testCapture(), Options{})
	assert.ErrorIs(t, err, interrors.ErrCancelled)
	assert.Equal(t, StateCancelled, res.State)
	assert.Empty(t, res.Path)
	assert.NoDirExists(t, filepath.Join(f.root, "2025"))

	// The reserved id is released for the next run.
	res, err = build().Process(context.Background(), testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "20250804_142512", res.Note.ID)
}

func TestProcessCancelAfterPersistingStarts(t *testing.T) {
	f, build := newFixture(t, goodOCR("text"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := build(WithObserver(func(_ string, s State) {
		if s == StatePersisting {
			cancel()
		}
	}))

	res, err := o.Process(ctx, testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, res.State)
	assert.FileExists(t, res.Path)

	stats, err := f.index.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
}

func TestProcessRecordsPeerTimeout(t *testing.T) {
	_, build := newFixture(t, goodOCR("text"), map[string]models.PeerResult{
		"slow":  {Peer: "slow", Status: models.PeerTimeout, Error: interrors.ErrPeerTimeout.Error()},
		"excel": {Peer: "excel", Status: models.PeerOK, Payload: map[string]any{"output": "done"}},
	})

	res, err := build().Process(context.Background(), testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, res.State)
	assert.Contains(t, res.Note.Body, compose.HeadingPeerFailure)
	assert.Contains(t, res.Note.Body, "- **slow**: timeout")
	assert.Contains(t, res.Note.Body, "## excel\n\ndone")
	assert.Equal(t, models.PeerTimeout, res.Note.Peers["slow"].Status)
}

func TestProcessSkipPeers(t *testing.T) {
	f, build := newFixture(t, goodOCR("text"), map[string]models.PeerResult{
		"excel": {Peer: "excel", Status: models.PeerOK},
	})

	res, err := build().Process(context.Background(), testCapture(), Options{SkipPeers: true})
	require.NoError(t, err)
	assert.Equal(t, StateIndexed, res.State)
	assert.Empty(t, f.peers.requests)
	assert.Nil(t, res.Peers)
}

func TestProcessIngestFailureKeepsNote(t *testing.T) {
	root := t.TempDir()
	st := store.New(root)
	ext := extract.New(extract.Binding{Adapter: goodOCR("text"), Enabled: true})
	o := New(ext, nil, compose.New(nil, 0), st, failingIndexer{})

	res, err := o.Process(context.Background(), testCapture(), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, res.State)
	assert.Contains(t, res.Error, "reindex")
	assert.FileExists(t, res.Path)
}

func TestProcessEmptyCapture(t *testing.T) {
	_, build := newFixture(t, goodOCR("text"), nil)
	res, err := build().Process(context.Background(), models.NewCapture(nil, captureTime, nil, ""), Options{})
	assert.ErrorIs(t, err, interrors.ErrEmptyCapture)
	assert.Equal(t, StateFailed, res.State)
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StatePersisted, StateIndexed, StateCancelled, StateFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{StateIdle, StateExtracting, StatePostProcessing, StateComposing, StatePersisting} {
		assert.False(t, s.Terminal(), s)
	}
}
