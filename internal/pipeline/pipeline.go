// Package pipeline turns one Capture into a persisted, indexed note. It is
// the only writer of new notes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streed/snap-notes/internal/compose"
	"github.com/streed/snap-notes/internal/constants"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/extract"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
	"github.com/streed/snap-notes/internal/peers"
	"github.com/streed/snap-notes/internal/store"
)

// State is a step of one pipeline run.
type State string

const (
	StateIdle           State = "idle"
	StateExtracting     State = "extracting"
	StatePostProcessing State = "post_processing"
	StateComposing      State = "composing"
	StatePersisting     State = "persisting"
	// StatePersisted means the pair is on disk but the index ingest failed.
	// A reindex picks the note up.
	StatePersisted State = "persisted"
	StateIndexed   State = "indexed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StatePersisted, StateIndexed, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Extractor runs the extraction adapters for a capture.
type Extractor interface {
	Run(ctx context.Context, capture models.Capture, skip extract.Skip) map[models.AdapterKind]models.ExtractionResult
}

// Dispatcher fans a capture out to post-processing peers.
type Dispatcher interface {
	Dispatch(ctx context.Context, req peers.Request, names ...string) map[string]models.PeerResult
	HasEnabled() bool
}

// Store is the part of the artifact store the pipeline writes through.
type Store interface {
	Exists(id string) bool
	NotePath(id string) (string, error)
	WritePair(note *models.Note, image []byte) (string, error)
}

// Indexer receives every persisted note.
type Indexer interface {
	Ingest(ctx context.Context, note *models.Note) error
}

// Options are the caller's per-capture choices.
type Options struct {
	Title     string
	Tags      []string
	SkipOCR   bool
	SkipVLM   bool
	SkipPeers bool
	// Peers limits dispatch to the named peers. Empty means all configured.
	Peers []string
}

// Result describes a finished run.
type Result struct {
	RunID      string                                         `json:"run_id"`
	State      State                                          `json:"state"`
	Note       *models.Note                                   `json:"note,omitempty"`
	Path       string                                         `json:"path,omitempty"`
	Extraction map[models.AdapterKind]models.ExtractionResult `json:"extraction,omitempty"`
	Peers      map[string]models.PeerResult                   `json:"peers,omitempty"`
	Duration   time.Duration                                  `json:"duration"`
	Error      string                                         `json:"error,omitempty"`
}

// Observer is told about every state a run enters.
type Observer func(runID string, state State)

// Orchestrator sequences extraction, post-processing, composition,
// persistence and indexing for each capture.
type Orchestrator struct {
	extractor Extractor
	router    Dispatcher
	composer  *compose.Composer
	store     Store
	index     Indexer
	timeout   time.Duration
	observer  Observer

	mu       sync.Mutex
	reserved map[string]struct{}
}

// Option adjusts an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds the stages before Persisting. Running out degrades the
// note; it does not cancel the run.
func WithTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.timeout = d } }

// WithObserver registers a state callback.
func WithObserver(fn Observer) Option { return func(o *Orchestrator) { o.observer = fn } }

func New(extractor Extractor, router Dispatcher, composer *compose.Composer, st Store, index Indexer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		router:    router,
		composer:  composer,
		store:     st,
		index:     index,
		timeout:   constants.DefaultPipelineTimeout,
		reserved:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type run struct {
	id     string
	start  time.Time
	state  State
	notify Observer
}

func (r *run) enter(s State) {
	r.state = s
	logger.Debug("[%s] %s", r.id[:8], s)
	if r.notify != nil {
		r.notify(r.id, s)
	}
}

// Process runs the full pipeline for capture. Failures of adapters and peers
// degrade the note; only a persistence failure or cancellation before
// Persisting returns an error. A non-nil Result is always returned.
func (o *Orchestrator) Process(ctx context.Context, capture models.Capture, opts Options) (*Result, error) {
	r := &run{id: uuid.NewString(), start: time.Now(), notify: o.observer}
	res := &Result{RunID: r.id}
	r.enter(StateIdle)

	finish := func(s State, err error) (*Result, error) {
		r.enter(s)
		res.State = s
		res.Duration = time.Since(r.start)
		if err != nil {
			res.Error = err.Error()
		}
		return res, err
	}

	if capture.IsEmpty() {
		return finish(StateFailed, interrors.ErrEmptyCapture)
	}

	noteID, suffix := o.reserve(capture.Timestamp(), 0)
	defer func() { o.release(noteID) }()
	logger.Info("[%s] Processing capture %s", r.id[:8], noteID)

	runCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	r.enter(StateExtracting)
	res.Extraction = o.extractor.Run(runCtx, capture, extract.Skip{
		models.KindOCR: opts.SkipOCR,
		models.KindVLM: opts.SkipVLM,
	})
	if err := cancelled(ctx); err != nil {
		return finish(StateCancelled, err)
	}

	r.enter(StatePostProcessing)
	if !opts.SkipPeers && o.router != nil && (len(opts.Peers) > 0 || o.router.HasEnabled()) {
		peerResults, err := o.postProcess(runCtx, noteID, capture, res.Extraction, opts)
		if err != nil {
			logger.Warn("[%s] Post-processing skipped: %v", r.id[:8], err)
		}
		res.Peers = peerResults
	}
	if err := cancelled(ctx); err != nil {
		return finish(StateCancelled, err)
	}
	o.warnExpired(r, runCtx)

	r.enter(StateComposing)
	in := compose.Input{
		ID:         noteID,
		Title:      opts.Title,
		Tags:       opts.Tags,
		Capture:    capture,
		Extraction: res.Extraction,
		Peers:      res.Peers,
	}
	note := o.composer.Compose(in)
	res.Note = note
	if err := cancelled(ctx); err != nil {
		return finish(StateCancelled, err)
	}

	// Past this point the run completes regardless of the caller.
	r.enter(StatePersisting)
	path, err := o.store.WritePair(note, capture.Image())
	for attempt := 1; errors.Is(err, interrors.ErrNoteExists) && attempt < constants.MaxPlaceAttempts; attempt++ {
		// Another process took the id after it was reserved.
		taken := noteID
		o.release(taken)
		noteID, suffix = o.reserve(capture.Timestamp(), suffix+1)
		logger.Warn("[%s] %s was taken by another writer, saving as %s", r.id[:8], taken, noteID)
		in.ID = noteID
		note = o.composer.Compose(in)
		res.Note = note
		path, err = o.store.WritePair(note, capture.Image())
	}
	if err != nil {
		var perr *interrors.PersistenceError
		if !errors.As(err, &perr) {
			err = &interrors.PersistenceError{NoteID: noteID, Err: err}
		}
		logger.Error("[%s] Failed to persist %s: %v", r.id[:8], noteID, err)
		return finish(StateFailed, err)
	}
	res.Path = path

	ingestCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultIngestTimeout)
	defer cancel()
	if err := o.index.Ingest(ingestCtx, note); err != nil {
		logger.Error("[%s] Saved %s but failed to index it: %v", r.id[:8], path, err)
		r.enter(StatePersisted)
		res.State = StatePersisted
		res.Duration = time.Since(r.start)
		res.Error = err.Error()
		return res, nil
	}

	logger.Info("[%s] Saved %s in %v", r.id[:8], path, time.Since(r.start).Round(time.Millisecond))
	return finish(StateIndexed, nil)
}

// postProcess hands the peers a staged copy of the image; the final file
// does not exist until Persisting.
func (o *Orchestrator) postProcess(ctx context.Context, noteID string, capture models.Capture, extraction map[models.AdapterKind]models.ExtractionResult, opts Options) (map[string]models.PeerResult, error) {
	notePath, err := o.store.NotePath(noteID)
	if err != nil {
		return nil, err
	}
	imagePath, cleanup, err := stageImage(capture.Image())
	if err != nil {
		return nil, err
	}
	defer cleanup()

	req := peers.Request{
		ImagePath:    imagePath,
		MarkdownPath: notePath,
		Timestamp:    capture.Timestamp(),
		Tags:         o.composer.Tags(opts.Tags),
	}
	if r := extraction[models.KindOCR]; r.OK() {
		req.OCRText = r.Text
	}
	if r := extraction[models.KindVLM]; r.OK() {
		req.VLMDescription = r.Text
	}
	return o.router.Dispatch(ctx, req, opts.Peers...), nil
}

func stageImage(image []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "snap-notes-capture-*"+constants.ImageExt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to stage capture image: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := f.Write(image); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to stage capture image: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to stage capture image: %w", err)
	}
	return f.Name(), cleanup, nil
}

// reserve claims the first free id for ts with a suffix of at least from.
// An id is taken if another run holds it or either half of its pair already
// exists on disk. Other processes sharing the store are only caught when
// WritePair refuses to replace their files.
func (o *Orchestrator) reserve(ts time.Time, from int) (string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for n := from; ; n++ {
		id := store.Basename(ts, n)
		if _, held := o.reserved[id]; held {
			continue
		}
		if o.store.Exists(id) {
			continue
		}
		o.reserved[id] = struct{}{}
		return id, n
	}
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.reserved, id)
	o.mu.Unlock()
}

// warnExpired notes a run whose pipeline timeout ran out before composing.
// The run carries on with whatever extraction and the peers produced.
func (o *Orchestrator) warnExpired(r *run, runCtx context.Context) {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("[%s] Pipeline timeout of %v reached, continuing with partial results", r.id[:8], o.timeout)
	}
}

// cancelled reports whether the caller gave up. Only the caller's context
// counts; the pipeline timeout degrades results instead.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", interrors.ErrCancelled, err)
	}
	return nil
}
