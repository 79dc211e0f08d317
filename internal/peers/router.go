// Package peers fans a capture out to the configured post-processing peers.
// Each peer is an external process addressed over MCP; sessions are kept
// alive between captures and restarted after a crash or timeout.
package peers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/streed/snap-notes/internal/config"
	"github.com/streed/snap-notes/internal/constants"
	interrors "github.com/streed/snap-notes/internal/errors"
	"github.com/streed/snap-notes/internal/logger"
	"github.com/streed/snap-notes/internal/models"
)

// Request is the context handed to every peer for one capture.
type Request struct {
	ImagePath      string
	MarkdownPath   string
	OCRText        string
	VLMDescription string
	Timestamp      time.Time
	Tags           []string
}

func (r Request) arguments() map[string]any {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"image_path":      r.ImagePath,
		"markdown_path":   r.MarkdownPath,
		"ocr_text":        r.OCRText,
		"vlm_description": r.VLMDescription,
		"timestamp":       r.Timestamp.UTC().Format(time.RFC3339),
		"tags":            tags,
	}
}

type peer struct {
	spec    config.PeerConfig
	timeout time.Duration

	mu     sync.Mutex
	client Client
}

// Router owns every peer session. Nothing else talks to a peer process.
type Router struct {
	launch Launcher
	peers  map[string]*peer
	order  []string
}

// NewRouter builds a router for the configured peers. Peers are launched
// lazily on first dispatch.
func NewRouter(cfg *config.Config, launch Launcher) *Router {
	if launch == nil {
		launch = StdioLauncher
	}
	r := &Router{launch: launch, peers: make(map[string]*peer)}
	for _, spec := range cfg.Peers {
		if spec.Tool == "" {
			spec.Tool = config.DefaultPeerTool
		}
		r.peers[spec.Name] = &peer{spec: spec, timeout: cfg.PeerTimeoutFor(spec)}
		r.order = append(r.order, spec.Name)
	}
	return r
}

// List returns the configured peers without contacting them.
func (r *Router) List() []models.PeerInfo {
	infos := make([]models.PeerInfo, 0, len(r.order))
	for _, name := range r.order {
		p := r.peers[name]
		infos = append(infos, models.PeerInfo{
			Name:    name,
			Enabled: p.spec.Enabled,
			Command: strings.TrimSpace(p.spec.Command + " " + strings.Join(p.spec.Args, " ")),
			Tool:    p.spec.Tool,
		})
	}
	return infos
}

// HasEnabled reports whether any peer would receive a dispatch.
func (r *Router) HasEnabled() bool {
	for _, p := range r.peers {
		if p.spec.Enabled {
			return true
		}
	}
	return false
}

// Dispatch sends req to the named peers (all configured peers when names is
// empty) concurrently and waits for each to answer or hit its own timeout.
// Disabled peers are reported as disabled without being contacted.
func (r *Router) Dispatch(ctx context.Context, req Request, names ...string) map[string]models.PeerResult {
	if len(names) == 0 {
		names = r.order
	}

	results := make([]models.PeerResult, len(names))
	var g errgroup.Group
	for i, name := range names {
		p, ok := r.peers[name]
		switch {
		case !ok:
			results[i] = models.PeerResult{Peer: name, Status: models.PeerFailed, Error: interrors.ErrUnknownPeer.Error(), Cause: interrors.ErrUnknownPeer}
			continue
		case !p.spec.Enabled:
			results[i] = models.PeerResult{Peer: name, Status: models.PeerDisabled}
			continue
		}
		g.Go(func() error {
			results[i] = r.call(ctx, p, req)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]models.PeerResult, len(results))
	for _, res := range results {
		out[res.Peer] = res
	}
	return out
}

type callOutcome struct {
	result *mcp.CallToolResult
	client Client
	err    error
}

// call runs one peer request bounded by the peer's timeout. The request runs
// in its own goroutine so a peer that ignores cancellation still cannot hold
// up the dispatch.
func (r *Router) call(ctx context.Context, p *peer, req Request) models.PeerResult {
	name := p.spec.Name
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		c, err := r.session(callCtx, p)
		if err != nil {
			done <- callOutcome{err: err}
			return
		}
		toolReq := mcp.CallToolRequest{}
		toolReq.Params.Name = p.spec.Tool
		toolReq.Params.Arguments = req.arguments()
		res, err := c.CallTool(callCtx, toolReq)
		done <- callOutcome{result: res, client: c, err: err}
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = callOutcome{err: callCtx.Err()}
		// The request is abandoned; the session may be wedged mid-call.
		go func() {
			late := <-done
			if late.client != nil {
				p.drop(late.client)
			}
		}()
	}

	res := models.PeerResult{Peer: name, Duration: time.Since(start)}
	switch {
	case out.err != nil && ctx.Err() != nil && !errors.Is(callCtx.Err(), context.DeadlineExceeded):
		res.Status = models.PeerFailed
		res.Cause = fmt.Errorf("%w: %v", interrors.ErrCancelled, out.err)
	case out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		res.Status = models.PeerTimeout
		res.Cause = fmt.Errorf("%w: %s after %v", interrors.ErrPeerTimeout, name, p.timeout)
		p.dropCurrent()
	case out.err != nil:
		res.Status = models.PeerFailed
		res.Cause = fmt.Errorf("%w: %s: %v", interrors.ErrPeerFailure, name, out.err)
		if out.client != nil {
			p.drop(out.client)
		}
	case out.result.IsError:
		res.Status = models.PeerFailed
		res.Cause = fmt.Errorf("%w: %s: %s", interrors.ErrPeerFailure, name, resultText(out.result))
	default:
		res.Status = models.PeerOK
		res.Payload = decodePayload(out.result)
	}

	if res.Cause != nil {
		res.Error = res.Cause.Error()
		logger.Warn("Peer %s %s after %v: %v", name, res.Status, res.Duration, res.Cause)
	} else {
		logger.Debug("Peer %s ok in %v", name, res.Duration)
	}
	return res
}

// session returns the live client for p, launching and initializing one if
// needed.
func (r *Router) session(ctx context.Context, p *peer) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	logger.Debug("Starting peer %s: %s %v", p.spec.Name, p.spec.Command, p.spec.Args)
	c, err := r.launch(ctx, p.spec)
	if err != nil {
		return nil, err
	}
	serverName, err := handshake(ctx, c)
	if err != nil {
		go c.Close()
		return nil, err
	}
	logger.Info("Peer %s connected (server %q)", p.spec.Name, serverName)
	p.client = c
	return c, nil
}

// drop forgets c if it is still p's session and closes it in the background.
// The next dispatch starts a fresh process.
func (p *peer) drop(c Client) {
	p.mu.Lock()
	if p.client == c {
		p.client = nil
	}
	p.mu.Unlock()
	go c.Close()
}

func (p *peer) dropCurrent() {
	// TryLock: a launch that is still in flight holds mu and will be dropped
	// by the abandoned-call goroutine once it returns.
	if !p.mu.TryLock() {
		return
	}
	c := p.client
	p.client = nil
	p.mu.Unlock()
	if c != nil {
		go c.Close()
	}
}

// Test performs a handshake and a tool listing against a fresh session for
// name. It never touches the note store and does not reuse dispatch sessions.
func (r *Router) Test(ctx context.Context, name string) (models.PeerTestResult, error) {
	p, ok := r.peers[name]
	if !ok {
		return models.PeerTestResult{}, fmt.Errorf("%w: %s", interrors.ErrUnknownPeer, name)
	}
	res := models.PeerTestResult{Name: name}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, constants.PeerTestTimeout)
	defer cancel()

	fail := func(err error) (models.PeerTestResult, error) {
		res.Error = err.Error()
		res.Latency = time.Since(start)
		return res, nil
	}

	c, err := r.launch(ctx, p.spec)
	if err != nil {
		return fail(err)
	}
	defer c.Close()

	serverName, err := handshake(ctx, c)
	if err != nil {
		return fail(err)
	}
	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fail(fmt.Errorf("tools/list failed: %w", err))
	}

	res.Reachable = true
	res.ServerName = serverName
	for _, t := range tools.Tools {
		res.Tools = append(res.Tools, t.Name)
		if t.Name == p.spec.Tool {
			res.HasTool = true
		}
	}
	res.Latency = time.Since(start)
	return res, nil
}

// Close shuts down every live peer session.
func (r *Router) Close() {
	for _, p := range r.peers {
		p.mu.Lock()
		c := p.client
		p.client = nil
		p.mu.Unlock()
		if c != nil {
			if err := c.Close(); err != nil {
				logger.Debug("Closing peer %s: %v", p.spec.Name, err)
			}
		}
	}
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// decodePayload turns a tool result into the payload stored in the note.
// Structured content that is a JSON object wins; otherwise a JSON object in
// the text is used as is, and any other text is kept under "output".
func decodePayload(res *mcp.CallToolResult) map[string]any {
	if obj := structuredObject(res.StructuredContent); obj != nil {
		return obj
	}
	text := resultText(res)
	if text == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		return map[string]any{"output": value}
	}
	return map[string]any{"output": text}
}

func structuredObject(v any) map[string]any {
	switch obj := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return obj
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}
