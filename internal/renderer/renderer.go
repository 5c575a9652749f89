// Package renderer renders a clip into an HTML page.
//
// Each render builds a fresh runtime over a fresh source, so templates,
// manifests and styles are always fetched anew. The page document is
// parsed, the clip is included at the target, and the frame loop runs until
// it settles (attachments confirmed, loads finished) before the document is
// serialized. The render, watch and serve commands all go through here.
package renderer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/clips/internal/config"
	"github.com/conneroisu/clips/internal/logging"
	"github.com/conneroisu/clips/internal/loop"
	"github.com/conneroisu/clips/internal/source"
	"github.com/conneroisu/clips/pkg/clips"
	"github.com/conneroisu/clips/pkg/dom"
)

// BlankPage is the document used when no page file is configured.
const BlankPage = `<!DOCTYPE html><html><head><meta charset="utf-8"></head><body></body></html>`

// PageRenderer renders the configured page.
type PageRenderer struct {
	config  *config.Config
	logger  logging.Logger
	metrics clips.Metrics
	source  source.Source
	tracer  trace.Tracer
	renders atomic.Int64
}

// Option configures a PageRenderer.
type Option func(*PageRenderer)

// WithLogger sets the logger handed to each runtime.
func WithLogger(logger logging.Logger) Option {
	return func(r *PageRenderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink handed to each runtime.
func WithMetrics(m clips.Metrics) Option {
	return func(r *PageRenderer) { r.metrics = m }
}

// WithSource replaces the source opened from the configured base path.
func WithSource(src source.Source) Option {
	return func(r *PageRenderer) { r.source = src }
}

// NewPageRenderer creates a renderer for cfg.
func NewPageRenderer(cfg *config.Config, opts ...Option) *PageRenderer {
	r := &PageRenderer{
		config: cfg,
		logger: logging.Nop(),
		tracer: otel.Tracer("github.com/conneroisu/clips/internal/renderer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("renderer")
	return r
}

// Request overrides the configured page for one render. Empty fields fall
// back to the page configuration.
type Request struct {
	Clip     string
	Target   string
	Position string
	Options  clips.Options
	// Frames bounds the frames run before output; zero uses loop.max_frames.
	Frames int
}

// Result is a rendered page.
type Result struct {
	HTML string
	// Frames is the number of frames run before the loop settled.
	Frames int
	// Clip is the included clip; its runtime is discarded with the result.
	Clip *clips.Clip
}

// Render renders the page described by req.
func (r *PageRenderer) Render(ctx context.Context, req Request) (*Result, error) {
	req = r.withDefaults(req)

	ctx, span := r.tracer.Start(ctx, "renderer.render", trace.WithAttributes(
		attribute.String("clip", req.Clip),
		attribute.String("target", req.Target),
	))
	defer span.End()

	result, err := r.render(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("frames", result.Frames))
	return result, nil
}

func (r *PageRenderer) withDefaults(req Request) Request {
	page := r.config.Page
	if req.Clip == "" {
		req.Clip = page.Clip
	}
	if req.Target == "" {
		req.Target = page.Target
	}
	if req.Target == "" {
		req.Target = "body"
	}
	if req.Position == "" {
		req.Position = page.Position
	}
	if req.Frames <= 0 {
		req.Frames = r.config.Loop.MaxFrames
	}
	return req
}

func (r *PageRenderer) render(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Clip) == "" {
		return nil, fmt.Errorf("no clip to render: set page.clip or pass a clip name")
	}
	pos, err := clips.ParsePosition(req.Position)
	if err != nil {
		return nil, err
	}

	doc, err := r.loadPage()
	if err != nil {
		return nil, err
	}
	target, err := dom.Query(doc, req.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	if target == nil {
		return nil, fmt.Errorf("target %q not found in page", req.Target)
	}

	rt, err := r.runtime(doc)
	if err != nil {
		return nil, err
	}

	n := r.renders.Add(1)
	r.logger.Debug(ctx, "Rendering page", "clip", req.Clip, "target", req.Target, "render", n)

	c, err := rt.Include(ctx, req.Clip, target, clips.IncludeOptions{
		Position: pos,
		Options:  req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", req.Clip, err)
	}

	frames := rt.Loop().Settle(req.Frames)
	if tasks, pending := rt.Loop().Pending(); tasks+pending > 0 {
		r.logger.Warn(ctx, nil, "Loop did not settle",
			"frames", frames, "tasks", tasks, "pending_frames", pending)
	}

	return &Result{HTML: dom.Render(doc), Frames: frames, Clip: c}, nil
}

func (r *PageRenderer) loadPage() (*html.Node, error) {
	src := BlankPage
	if file := r.config.Page.File; file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading page: %w", err)
		}
		src = string(data)
	}
	return dom.Parse(src)
}

func (r *PageRenderer) runtime(doc *html.Node) (*clips.Runtime, error) {
	src := r.source
	if src == nil && r.config.Clips.BasePath != "" {
		var err error
		src, err = source.Open(r.config.Clips.BasePath, source.Options{S3: r.config.S3})
		if err != nil {
			return nil, fmt.Errorf("opening source: %w", err)
		}
	}

	lp, err := loop.New(
		loop.WithInterval(r.config.Loop.FrameInterval),
		loop.WithLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}

	opts := []clips.Option{
		clips.WithLoop(lp),
		clips.WithLogger(r.logger),
		clips.WithStyles(dom.NewHeadStyles(doc)),
		clips.WithMetrics(r.metrics),
	}
	if src != nil {
		opts = append(opts, clips.WithSource(src))
	}
	return clips.New(r.config.Clips, opts...)
}

// ParseSet parses key=value pairs into options. Values are decoded as YAML
// scalars or flow collections, so "n=3" yields an int and "tags=[a, b]" a
// list; anything that does not decode stays a string.
func ParseSet(pairs []string) (clips.Options, error) {
	opts := clips.Options{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q: expected key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		opts[key] = value
	}
	return opts, nil
}
