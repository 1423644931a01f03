// Package engine runs the edition loop: for each layer configuration it draws
// DNA until the cumulative edition target is met, rejecting duplicates
// against a tolerance, and turns every accepted DNA into an image and a
// metadata record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/layerforge/internal/dna"
	"github.com/zjrosen/layerforge/internal/layers"
	"github.com/zjrosen/layerforge/internal/ledger"
	"github.com/zjrosen/layerforge/internal/log"
	"github.com/zjrosen/layerforge/internal/metadata"
	"github.com/zjrosen/layerforge/internal/output"
	"github.com/zjrosen/layerforge/internal/render"
	"github.com/zjrosen/layerforge/internal/tracing"
)

var (
	// ErrToleranceExceeded ends a run whose duplicate draws reached the
	// configured tolerance.
	ErrToleranceExceeded = errors.New("unique dna tolerance exceeded")

	// ErrInvalidPlan is returned before drawing for an unusable plan.
	ErrInvalidPlan = errors.New("invalid generation plan")

	errAlreadyRun = errors.New("scheduler has already run")
)

// ToleranceError carries the details of a tolerance abort.
type ToleranceError struct {
	Target     int // edition ceiling of the configuration being grown
	Created    int
	Duplicates int
}

func (e *ToleranceError) Error() string {
	return fmt.Sprintf("you need more layers or elements to grow your edition to %d artworks", e.Target)
}

func (e *ToleranceError) Unwrap() error { return ErrToleranceExceeded }

// Compositor draws one edition.
type Compositor interface {
	Compose(ctx context.Context, ls []render.Layer) (*render.Result, error)
}

// Recorder receives run metrics.
type Recorder interface {
	EditionCreated(configuration int, elapsed time.Duration)
	DuplicateDrawn(configuration int)
	RunFinished(status ledger.RunStatus)
}

type nopRecorder struct{}

func (nopRecorder) EditionCreated(int, time.Duration) {}
func (nopRecorder) DuplicateDrawn(int)                {}
func (nopRecorder) RunFinished(ledger.RunStatus)      {}

// Configuration is one layer configuration of a plan.
type Configuration struct {
	// GrowEditionSizeTo is the cumulative edition count the run reaches
	// before moving to the next configuration.
	GrowEditionSizeTo int
	Layers            []layers.Spec
}

// Plan is what a run generates.
type Plan struct {
	Configurations []Configuration
	// Tolerance is the number of duplicate draws, counted per FailureScope,
	// that aborts the run.
	Tolerance      int
	FailureScope   FailureScope
	ShuffleIndices bool
	StartIndex     int
}

func (p Plan) validate() error {
	if len(p.Configurations) == 0 {
		return fmt.Errorf("%w: no layer configurations", ErrInvalidPlan)
	}
	prev := 0
	for i, c := range p.Configurations {
		if c.GrowEditionSizeTo <= prev {
			return fmt.Errorf("%w: layer configuration %d: grow_edition_size_to %d must exceed %d", ErrInvalidPlan, i, c.GrowEditionSizeTo, prev)
		}
		prev = c.GrowEditionSizeTo
	}
	if p.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative", ErrInvalidPlan)
	}
	if _, err := ParseFailureScope(string(p.FailureScope)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}

func (p Plan) lastTarget() int {
	return p.Configurations[len(p.Configurations)-1].GrowEditionSizeTo
}

// Progress is reported after every accepted edition.
type Progress struct {
	RunID         string
	Edition       int
	Hash          string
	Configuration int
	Created       int
	Target        int
}

// Reservation is the outcome of accepting a DNA: the edition number it owns.
type Reservation struct {
	Index int
	DNA   dna.DNA
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	State      State
	Status     ledger.RunStatus
	Editions   int
	Duplicates int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLedger records the run and its editions.
func WithLedger(repo ledger.Repository) Option {
	return func(s *Scheduler) { s.ledger = repo }
}

// WithRecorder reports metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithTracer wraps the run in spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// WithProgress calls fn synchronously after every accepted edition.
func WithProgress(fn func(Progress)) Option {
	return func(s *Scheduler) { s.progress = fn }
}

// WithRunInfo labels the ledger entry of the run.
func WithRunInfo(collection, network string, seed uint64) Option {
	return func(s *Scheduler) {
		s.collection = collection
		s.network = network
		s.seed = seed
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler executes one Plan. It is single use.
type Scheduler struct {
	plan       Plan
	catalog    layers.Catalog
	compositor Compositor
	builder    *metadata.Builder
	writer     *output.Writer
	rng        *rand.Rand
	generator  *dna.Generator

	ledger     ledger.Repository
	recorder   Recorder
	tracer     trace.Tracer
	progress   func(Progress)
	collection string
	network    string
	seed       uint64
	now        func() time.Time

	state    atomic.Int32
	runID    string
	tracker  *dna.Tracker
	queue    *IndexQueue
	failures failureCounter
	records  []any
}

// New returns a scheduler for plan. rng drives both DNA draws and the index
// shuffle, so a fixed seed reproduces a run.
func New(plan Plan, catalog layers.Catalog, compositor Compositor, builder *metadata.Builder, writer *output.Writer, rng *rand.Rand, opts ...Option) *Scheduler {
	s := &Scheduler{
		plan:       plan,
		catalog:    catalog,
		compositor: compositor,
		builder:    builder,
		writer:     writer,
		rng:        rng,
		generator:  dna.NewGenerator(rng),
		recorder:   nopRecorder{},
		tracer:     noop.NewTracerProvider().Tracer("noop"),
		now:        time.Now,
		tracker:    dna.NewTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current phase. Safe to call from any goroutine.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// RunID returns the id of the run, empty before Run.
func (s *Scheduler) RunID() string { return s.runID }

func (s *Scheduler) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		log.Debug(log.CatEngine, "State transition", "from", from, "to", to)
	}
}

// Run generates every configuration of the plan. The build output is reset
// first. When the run ends early the aggregate metadata file still lists
// every edition produced so far.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	if s.State() != StateIdle {
		return nil, errAlreadyRun
	}
	if err := s.plan.validate(); err != nil {
		s.transition(StateAborted)
		return nil, err
	}
	scope, _ := ParseFailureScope(string(s.plan.FailureScope))
	s.failures = failureCounter{scope: scope, tolerance: s.plan.Tolerance}

	s.runID = uuid.NewString()
	ctx, span := s.tracer.Start(ctx, tracing.SpanRun, trace.WithAttributes(
		attribute.String(tracing.AttrRunID, s.runID),
		attribute.Int64(tracing.AttrRunSeed, int64(s.seed)), //nolint:gosec // label only
	))
	defer span.End()

	var shuffle *rand.Rand
	if s.plan.ShuffleIndices {
		shuffle = s.rng
	}
	s.queue = NewIndexQueue(s.plan.StartIndex, s.plan.lastTarget(), shuffle)

	if err := s.writer.Reset(ctx); err != nil {
		s.transition(StateAborted)
		return nil, err
	}
	if s.ledger != nil {
		if err := s.ledger.CreateRun(ctx, &ledger.Run{
			ID:         s.runID,
			Collection: s.collection,
			Network:    s.network,
			Seed:       s.seed,
			Target:     s.plan.lastTarget(),
			Status:     ledger.RunStatusRunning,
			StartedAt:  s.now(),
		}); err != nil {
			s.transition(StateAborted)
			return nil, fmt.Errorf("record run: %w", err)
		}
	}
	log.Info(log.CatEngine, "Run started", "run", s.runID, "configurations", len(s.plan.Configurations), "target", s.plan.lastTarget())

	err := s.generate(ctx)
	return s.finish(ctx, span, err)
}

func (s *Scheduler) generate(ctx context.Context) error {
	for ci, c := range s.plan.Configurations {
		if err := s.growConfiguration(ctx, ci, c); err != nil {
			return err
		}
		s.transition(StateAdvancing)
	}
	return nil
}

func (s *Scheduler) growConfiguration(ctx context.Context, ci int, c Configuration) error {
	s.transition(StateConfiguringLayers)
	slots, err := layers.Build(ctx, s.catalog, c.Layers)
	if err != nil {
		return fmt.Errorf("layer configuration %d: %w", ci, err)
	}
	s.failures.startConfiguration()

	ctx, span := s.tracer.Start(ctx, tracing.SpanConfiguration, trace.WithAttributes(
		attribute.Int(tracing.AttrConfiguration, ci),
		attribute.Int(tracing.AttrTarget, c.GrowEditionSizeTo),
		attribute.Int(tracing.AttrCombinations, layers.Combinations(slots)),
	))
	defer span.End()
	log.Debug(log.CatEngine, "Layer configuration ready", "configuration", ci, "slots", len(slots), "combinations", layers.Combinations(slots), "target", c.GrowEditionSizeTo)

	for s.tracker.Len() < c.GrowEditionSizeTo {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.transition(StateDrawing)
		d, err := s.generator.Generate(slots)
		if err != nil {
			return fmt.Errorf("layer configuration %d: %w", ci, err)
		}

		if !s.tracker.IsUnique(d) {
			s.transition(StateRetrying)
			s.recorder.DuplicateDrawn(ci)
			log.Debug(log.CatEngine, "DNA exists", "configuration", ci, "dna", d.String())
			if s.failures.duplicate() {
				return &ToleranceError{Target: c.GrowEditionSizeTo, Created: s.tracker.Len(), Duplicates: s.failures.current}
			}
			continue
		}

		if err := s.produce(ctx, ci, slots, d); err != nil {
			return err
		}
		s.failures.accepted()
		s.transition(StateAdvancing)
	}
	return nil
}

// produce resolves, draws and persists one unique DNA. The DNA is committed
// only after drawing succeeded.
func (s *Scheduler) produce(ctx context.Context, ci int, slots []layers.Slot, d dna.DNA) error {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, tracing.SpanEdition)
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	resolved, err := dna.Resolve(d, slots)
	if err != nil {
		return fail(err)
	}
	result, err := s.compositor.Compose(ctx, toLayers(resolved))
	if err != nil {
		return fail(fmt.Errorf("compose: %w", err))
	}

	res, err := s.accept(d)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Int(tracing.AttrEdition, res.Index), attribute.String(tracing.AttrDNAHash, d.Hash()))

	record := s.builder.Render(s.builder.Build(res.DNA, res.Index, metadata.CollectTraits(resolved)))
	if err := s.persist(ctx, res.Index, result, record); err != nil {
		return fail(err)
	}
	s.records = append(s.records, record)

	if s.ledger != nil {
		if err := s.ledger.RecordEdition(ctx, &ledger.Edition{
			RunID:         s.runID,
			Edition:       res.Index,
			Configuration: ci,
			DNA:           d.String(),
			Hash:          d.Hash(),
			CreatedAt:     s.now(),
		}); err != nil {
			return fail(fmt.Errorf("record edition %d: %w", res.Index, err))
		}
	}

	s.recorder.EditionCreated(ci, s.now().Sub(start))
	log.Debug(log.CatEngine, "Created edition", "edition", res.Index, "dna", d.Hash())
	if s.progress != nil {
		s.progress(Progress{
			RunID:         s.runID,
			Edition:       res.Index,
			Hash:          d.Hash(),
			Configuration: ci,
			Created:       s.tracker.Len(),
			Target:        s.plan.lastTarget(),
		})
	}
	return nil
}

// accept commits d and reserves its edition number.
func (s *Scheduler) accept(d dna.DNA) (Reservation, error) {
	index, ok := s.queue.Reserve()
	if !ok {
		return Reservation{}, errors.New("edition index queue exhausted")
	}
	s.tracker.Commit(d)
	return Reservation{Index: index, DNA: d}, nil
}

func (s *Scheduler) persist(ctx context.Context, index int, result *render.Result, record any) error {
	if err := s.writer.WriteImage(ctx, index, result.PNG); err != nil {
		return err
	}
	if result.GIF != nil {
		if err := s.writer.WriteGIF(ctx, index, result.GIF); err != nil {
			return err
		}
	}
	return s.writer.WriteMetadata(ctx, index, record)
}

func (s *Scheduler) finish(ctx context.Context, span trace.Span, runErr error) (*Summary, error) {
	status := ledger.RunStatusCompleted
	switch {
	case runErr == nil:
		s.transition(StateDone)
	case errors.Is(runErr, ErrToleranceExceeded):
		status = ledger.RunStatusAborted
		s.transition(StateAborted)
	default:
		status = ledger.RunStatusFailed
		s.transition(StateAborted)
	}

	// Bookkeeping outlives a cancelled run context.
	ctx = context.WithoutCancel(ctx)
	if err := s.writer.WriteAggregate(ctx, s.records); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if s.ledger != nil {
		if err := s.ledger.FinishRun(ctx, s.runID, status, s.tracker.Len(), s.failures.total, runErr, s.now()); err != nil {
			log.ErrorErr(log.CatEngine, "Failed to finish ledger run", err, "run", s.runID)
		}
	}
	s.recorder.RunFinished(status)

	span.SetAttributes(
		attribute.String(tracing.AttrRunStatus, status.String()),
		attribute.Int(tracing.AttrDuplicates, s.failures.total),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.ErrorErr(log.CatEngine, "Run ended early", runErr, "run", s.runID, "status", status, "editions", s.tracker.Len())
	} else {
		span.SetStatus(codes.Ok, "")
		log.Info(log.CatEngine, "Run completed", "run", s.runID, "editions", s.tracker.Len(), "duplicates", s.failures.total)
	}

	return &Summary{
		RunID:      s.runID,
		State:      s.State(),
		Status:     status,
		Editions:   s.tracker.Len(),
		Duplicates: s.failures.total,
	}, runErr
}

func toLayers(resolved []dna.Resolved) []render.Layer {
	out := make([]render.Layer, len(resolved))
	for i, r := range resolved {
		out[i] = render.Layer{
			Name:        r.Slot.DisplayName,
			ElementName: r.Element.Name,
			Path:        r.Element.Path,
			Blend:       r.Slot.Blend,
			Opacity:     r.Slot.Opacity,
		}
	}
	return out
}
