package generation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/newscast/internal/observe"
	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/fetch"
	"github.com/MrWong99/newscast/pkg/provider/podcast"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/script"
	"github.com/MrWong99/newscast/pkg/store"
	"github.com/MrWong99/newscast/pkg/types"
)

var (
	// ErrTopicBusy is returned by Start when the topic already has a job in flight.
	ErrTopicBusy = errors.New("generation: topic already has a job in flight")

	// ErrUnknownTopic is returned by Start for a topic that is not configured.
	ErrUnknownTopic = errors.New("generation: unknown topic")

	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("generation: job not found")

	// ErrJobFinished is returned by Cancel once a job is terminal or is
	// persisting its result.
	ErrJobFinished = errors.New("generation: job already finished")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("generation: manager closed")
)

// defaultHistory is how many finished jobs are kept for inspection.
const defaultHistory = 100

// Topic is a named set of sources a job can be started for.
type Topic struct {
	Name    string
	Title   string
	Sources []fetch.Source
}

// Fetcher collects the articles of a set of sources. [*fetch.Group]
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, sources []fetch.Source, onProgress func(completed, total int)) ([]types.Article, error)
}

// SnapshotSink receives a job's snapshot on every stage change and on its
// terminal transition. Publish must not block for long.
type SnapshotSink interface {
	Publish(ctx context.Context, s Snapshot)
}

// Voices selects the host voices for stepwise and integrated jobs.
type Voices struct {
	A           string
	B           string
	SpeedFactor float64
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Fetcher collects articles. Defaults to fetch.NewGroup().
	Fetcher Fetcher

	// Writer writes dialogue scripts. Nil fails stepwise jobs at the
	// scripting stage.
	Writer script.Writer

	// TTS synthesises single utterances for stepwise jobs.
	TTS tts.Provider

	// Podcast is the one-shot service for integrated jobs.
	Podcast podcast.Provider

	// Integrated selects StrategyIntegrated for new jobs.
	Integrated bool

	// Store persists finished podcasts. Defaults to an in-memory store.
	Store store.Store

	// OutputDir receives "<job-id>.wav". Defaults to "output".
	OutputDir string

	// Format is the format of the merged asset. Defaults to audio.DefaultFormat.
	Format audio.Format

	Voices Voices
	Prompt script.PromptOptions

	// JobTimeout bounds a whole job. Zero means no bound.
	JobTimeout time.Duration

	// History bounds how many finished jobs are retained. Zero means 100.
	History int

	Sink    SnapshotSink
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Manager starts, tracks, and cancels generation jobs.
// All exported methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*job
	order    []string // job ids in start order
	inFlight map[string]string
	topics   map[string]Topic
	voices   Voices
	closed   bool

	wg sync.WaitGroup

	fetcher    Fetcher
	writer     script.Writer
	tts        tts.Provider
	podcast    podcast.Provider
	integrated bool
	store      store.Store
	outputDir  string
	format     audio.Format
	prompt     script.PromptOptions
	jobTimeout time.Duration
	history    int
	sink       SnapshotSink
	metrics    *observe.Metrics
	log        *slog.Logger
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		jobs:       make(map[string]*job),
		inFlight:   make(map[string]string),
		topics:     make(map[string]Topic),
		voices:     cfg.Voices,
		fetcher:    cfg.Fetcher,
		writer:     cfg.Writer,
		tts:        cfg.TTS,
		podcast:    cfg.Podcast,
		integrated: cfg.Integrated,
		store:      cfg.Store,
		outputDir:  cmp.Or(cfg.OutputDir, "output"),
		format:     cfg.Format,
		prompt:     cfg.Prompt,
		jobTimeout: cfg.JobTimeout,
		history:    cmp.Or(cfg.History, defaultHistory),
		sink:       cfg.Sink,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
	if m.fetcher == nil {
		m.fetcher = fetch.NewGroup()
	}
	if m.store == nil {
		m.store = store.NewMemStore()
	}
	if !m.format.Valid() {
		m.format = audio.DefaultFormat
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// SetTopics replaces the set of startable topics. Jobs already running keep
// the sources they started with.
func (m *Manager) SetTopics(topics []Topic) {
	next := make(map[string]Topic, len(topics))
	for _, t := range topics {
		next[t.Name] = t
	}
	m.mu.Lock()
	m.topics = next
	m.mu.Unlock()
}

// Topics returns the startable topics sorted by name.
func (m *Manager) Topics() []Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Topic, 0, len(m.topics))
	for _, t := range m.topics {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Topic) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// SetVoices replaces the host voices used by jobs started afterwards.
func (m *Manager) SetVoices(v Voices) {
	m.mu.Lock()
	m.voices = v
	m.mu.Unlock()
}

// Strategy returns the strategy new jobs run.
func (m *Manager) Strategy() Strategy {
	if m.integrated {
		return StrategyIntegrated
	}
	return StrategyStepwise
}

// Start launches a job for topic and returns its first snapshot. The job runs
// independently of ctx; use Cancel to stop it.
//
// Returns ErrUnknownTopic for an unconfigured topic and ErrTopicBusy when the
// topic already has a job in flight.
func (m *Manager) Start(ctx context.Context, topic string) (Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	t, ok := m.topics[topic]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if id, busy := m.inFlight[topic]; busy {
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %q (job %s)", ErrTopicBusy, topic, id)
	}

	id := uuid.NewString()
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if m.jobTimeout > 0 {
		var cancelTimeout context.CancelFunc
		jobCtx, cancelTimeout = context.WithTimeout(jobCtx, m.jobTimeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}
	j := newJob(id, topic, m.Strategy(), cancel)
	m.inFlight[topic] = id
	m.jobs[id] = j
	m.order = append(m.order, id)
	voices := m.voices
	m.pruneLocked()
	m.wg.Add(1)
	m.mu.Unlock()

	snap := j.snapshot()
	m.metrics.RecordJobStarted(jobCtx, string(snap.Strategy))
	m.log.Info("generation job started",
		"job_id", id,
		"topic", topic,
		"strategy", snap.Strategy,
		"sources", len(t.Sources),
	)
	m.publish(jobCtx, snap)

	go m.run(jobCtx, j, t, voices)
	return snap, nil
}

// Cancel requests cancellation of job id. The job stops at its next
// checkpoint and ends Cancelled.
func (m *Manager) Cancel(id string) error {
	j, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := j.requestCancel(); err != nil {
		return err
	}
	m.log.Info("generation job cancel requested", "job_id", id)
	return nil
}

// Snapshot returns the current state of job id.
func (m *Manager) Snapshot(id string) (Snapshot, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return j.snapshot(), nil
}

// List returns snapshots of all known jobs, newest first.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	jobs := make([]*job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		jobs = append(jobs, m.jobs[m.order[i]])
	}
	m.mu.Unlock()

	out := make([]Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.snapshot()
	}
	return out
}

// Watch streams snapshots of job id. The channel holds at most one unread
// snapshot; a slow reader only sees the latest. It is closed after the
// terminal snapshot or when stop is called.
func (m *Manager) Watch(id string) (updates <-chan Snapshot, stop func(), err error) {
	j, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	updates, stop = j.watch()
	return updates, stop, nil
}

// Wait blocks until job id is terminal or ctx is done. It returns the
// terminal snapshot and the job's error: nil for completed, an error matching
// types.ErrCancelled for cancelled jobs, and the failure otherwise.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	j, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.copyLocked(), j.err
}

// Close cancels all running jobs and waits for them to finish or for ctx.
// Start fails with ErrClosed afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	var running []*job
	for _, id := range m.inFlight {
		running = append(running, m.jobs[id])
	}
	m.mu.Unlock()

	for _, j := range running {
		_ = j.requestCancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("generation: close: %w", ctx.Err())
	}
}

func (m *Manager) lookup(id string) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

// release frees the topic slot held by job id.
func (m *Manager) release(topic, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[topic] == id {
		delete(m.inFlight, topic)
	}
}

// pruneLocked drops the oldest finished jobs beyond the history bound.
func (m *Manager) pruneLocked() {
	finished := 0
	for _, id := range m.order {
		if m.jobs[id].snapshot().Terminal() {
			finished++
		}
	}
	if finished <= m.history {
		return
	}
	drop := finished - m.history
	kept := m.order[:0]
	for _, id := range m.order {
		if drop > 0 && m.jobs[id].snapshot().Terminal() {
			delete(m.jobs, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func (m *Manager) publish(ctx context.Context, s Snapshot) {
	if m.sink != nil {
		m.sink.Publish(context.WithoutCancel(ctx), s)
	}
}
