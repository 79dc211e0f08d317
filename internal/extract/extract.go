// Package extract runs the OCR and vision-description adapters over a capture.
package extract

import (
	"context"
	"errors"
	"net"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
)

// Adapter extracts one kind of information from a capture. Implementations
// make a single attempt and report failures through the returned error; they
// never retry.
type Adapter interface {
	Kind() models.AdapterKind
	Extract(ctx context.Context, capture models.Capture) (Output, error)
}

// Output is what an adapter produced on success.
type Output struct {
	Text       string
	Confidence *float64
}

// Binding pairs an adapter with its enabled flag and call timeout.
type Binding struct {
	Adapter Adapter
	Enabled bool
	Timeout time.Duration
}

// Extractor holds the configured adapters.
type Extractor struct {
	bindings map[models.AdapterKind]Binding
	order    []models.AdapterKind
}

func New(bindings ...Binding) *Extractor {
	e := &Extractor{bindings: make(map[models.AdapterKind]Binding)}
	for _, b := range bindings {
		kind := b.Adapter.Kind()
		if _, dup := e.bindings[kind]; !dup {
			e.order = append(e.order, kind)
		}
		e.bindings[kind] = b
	}
	return e
}

// Kinds lists the configured adapter kinds in registration order.
func (e *Extractor) Kinds() []models.AdapterKind {
	return append([]models.AdapterKind(nil), e.order...)
}

// Extract runs the adapter for kind once, bounded by its timeout. It always
// returns a result; failures are folded into status=failed.
func (e *Extractor) Extract(ctx context.Context, capture models.Capture, kind models.AdapterKind) models.ExtractionResult {
	b, ok := e.bindings[kind]
	if !ok || !b.Enabled {
		return models.ExtractionResult{Adapter: kind, Status: models.ExtractionSkipped}
	}

	callCtx := ctx
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := b.Adapter.Extract(callCtx, capture)
	res := models.ExtractionResult{Adapter: kind, Duration: time.Since(start)}
	if err != nil {
		cause := classify(ctx, callCtx, err)
		res.Status = models.ExtractionFailed
		res.Error = cause.Error()
		res.Cause = cause
		logger.Warn("%s extraction failed after %v: %v", kind, res.Duration, cause)
		return res
	}

	res.Status = models.ExtractionOK
	res.Text = out.Text
	res.Confidence = out.Confidence
	logger.Debug("%s extraction finished in %v (%d chars)", kind, res.Duration, len(out.Text))
	return res
}

// Skip lists adapter kinds a caller opted out of for one run.
type Skip map[models.AdapterKind]bool

// Run executes every configured adapter concurrently and waits for all of
// them. Results are keyed by kind; skipped kinds report status=skipped.
func (e *Extractor) Run(ctx context.Context, capture models.Capture, skip Skip) map[models.AdapterKind]models.ExtractionResult {
	results := make([]models.ExtractionResult, len(e.order))

	var g errgroup.Group
	for i, kind := range e.order {
		if skip[kind] {
			results[i] = models.ExtractionResult{Adapter: kind, Status: models.ExtractionSkipped}
			continue
		}
		g.Go(func() error {
			results[i] = e.Extract(ctx, capture, kind)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[models.AdapterKind]models.ExtractionResult, len(results))
	for _, r := range results {
		out[r.Adapter] = r
	}
	return out
}

// classify maps an adapter error onto the extraction taxonomy, keeping the
// original detail in the message.
func classify(parent, call context.Context, err error) error {
	switch {
	case errors.Is(err, interrors.ErrAdapterUnavailable),
		errors.Is(err, interrors.ErrAdapterTimeout),
		errors.Is(err, interrors.ErrLowConfidence):
		return err
	case errors.Is(parent.Err(), context.Canceled):
		return pkgerrors.Wrap(interrors.ErrCancelled, err.Error())
	case errors.Is(err, context.DeadlineExceeded) || call.Err() == context.DeadlineExceeded:
		return pkgerrors.Wrap(interrors.ErrAdapterTimeout, err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pkgerrors.Wrap(interrors.ErrAdapterTimeout, err.Error())
	}
	return pkgerrors.Wrap(interrors.ErrAdapterUnavailable, err.Error())
}
