package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/newscast/internal/observe"
	"github.com/MrWong99/newscast/pkg/audio"
	"github.com/MrWong99/newscast/pkg/provider/podcast"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/script"
	"github.com/MrWong99/newscast/pkg/types"
)

// charsPerMinute estimates how many script characters one minute of speech
// takes; it only drives the scripting progress estimate.
const charsPerMinute = 250

// integratedLo and integratedHi bound the progress of the one-shot service,
// which covers scripting and synthesis at once.
const (
	integratedLo = 0.3
	integratedHi = 0.9
)

// run is the job goroutine: the only writer of j.
func (m *Manager) run(ctx context.Context, j *job, t Topic, voices Voices) {
	defer m.wg.Done()

	start := time.Now()
	snap := j.snapshot()
	ctx, span := observe.StartSpan(ctx, "generation.job",
		trace.WithAttributes(
			attribute.String("job.id", snap.JobID),
			attribute.String("job.topic", t.Name),
			attribute.String("job.strategy", string(snap.Strategy)),
		),
	)
	log := observe.WithTrace(ctx, m.log).With("job_id", snap.JobID, "topic", t.Name)

	p, err := m.execute(ctx, j, t, voices)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !snapCancelled(j) {
		err = fmt.Errorf("generation: job exceeded its %s time limit: %w", m.jobTimeout, types.ErrConnection)
	}

	final := j.finish(p, err)
	m.release(t.Name, snap.JobID)
	j.cancel()
	// Waiters wake only after the outcome is released, logged, and published.
	defer j.close()

	observe.EndSpan(span, j.err)
	m.metrics.RecordJobFinished(ctx, string(final.Strategy), string(final.Stage), final.ErrKind, time.Since(start).Seconds())
	switch final.Stage {
	case StageCompleted:
		log.Info("generation job completed",
			"podcast_id", final.PodcastID,
			"duration_s", final.Podcast.DurationSeconds,
			"elapsed", time.Since(start),
		)
	case StageCancelled:
		log.Info("generation job cancelled", "elapsed", time.Since(start))
	default:
		log.Error("generation job failed", "kind", final.ErrKind, "err", err)
	}
	m.publish(ctx, final)
}

// execute runs the stages for j and returns the persisted podcast.
func (m *Manager) execute(ctx context.Context, j *job, t Topic, voices Voices) (*types.Podcast, error) {
	strategy := j.snapshot().Strategy
	if strategy == StrategyIntegrated && m.podcast == nil {
		return nil, fmt.Errorf("generation: integrated strategy without a podcast provider: %w", types.ErrConfiguration)
	}

	articles, err := m.fetchStage(ctx, j, t)
	if err != nil {
		return nil, err
	}
	if err := j.checkpoint(ctx); err != nil {
		return nil, err
	}

	var (
		merged     *audio.Stitched
		scriptText string
	)
	if strategy == StrategyIntegrated {
		merged, err = m.integratedStage(ctx, j, t, articles, voices)
	} else {
		var units []types.DialogueUnit
		var cites [][]int
		units, cites, scriptText, err = m.scriptStage(ctx, j, t, articles)
		if err != nil {
			return nil, err
		}
		if err := j.checkpoint(ctx); err != nil {
			return nil, err
		}
		merged, err = m.synthStage(ctx, j, units, cites, voices)
	}
	if err != nil {
		return nil, err
	}
	if err := j.checkpoint(ctx); err != nil {
		return nil, err
	}

	return m.saveStage(ctx, j, t, articles, merged, scriptText)
}

// stage wraps one pipeline stage in a span, its duration metric, and the
// stage transition.
func (m *Manager) stage(ctx context.Context, j *job, stage Stage, status string, fn func(ctx context.Context) error) error {
	if s, changed := j.advance(stage, 0, status); changed {
		m.publish(ctx, s)
	}
	ctx, span := observe.StartSpan(ctx, "generation."+string(stage))
	start := time.Now()
	err := fn(ctx)
	m.metrics.RecordStage(ctx, string(stage), time.Since(start).Seconds())
	observe.EndSpan(span, err)
	return err
}

// ── Fetch ─────────────────────────────────────────────────────────────────────

func (m *Manager) fetchStage(ctx context.Context, j *job, t Topic) ([]types.Article, error) {
	var articles []types.Article
	err := m.stage(ctx, j, StageFetching, fmt.Sprintf("Fetching %d sources", len(t.Sources)), func(ctx context.Context) error {
		var err error
		articles, err = m.fetcher.Fetch(ctx, t.Sources, func(completed, total int) {
			j.advance(StageFetching, float64(completed)/float64(total),
				fmt.Sprintf("Fetched %d of %d sources", completed, total))
		})
		if err != nil {
			return fmt.Errorf("generation: fetch: %w", err)
		}
		if len(articles) == 0 {
			return fmt.Errorf("generation: no articles for topic %q: %w", t.Name, types.ErrContent)
		}
		return nil
	})
	return articles, err
}

// ── Script ────────────────────────────────────────────────────────────────────

func (m *Manager) scriptStage(ctx context.Context, j *job, t Topic, articles []types.Article) (units []types.DialogueUnit, cites [][]int, text string, err error) {
	err = m.stage(ctx, j, StageScripting, "Writing script", func(ctx context.Context) error {
		if m.writer == nil {
			return fmt.Errorf("generation: no script writer configured: %w", types.ErrConfiguration)
		}
		if m.tts == nil {
			return fmt.Errorf("generation: no speech synthesiser configured: %w", types.ErrConfiguration)
		}

		prompt := script.BuildPrompt(cmpTitle(t), articles, m.prompt)
		minutes := m.prompt.TargetMinutes
		if minutes <= 0 {
			minutes = 5
		}
		expected := float64(minutes * charsPerMinute)

		start := time.Now()
		raw, err := m.writer.Write(ctx, prompt, func(partial string) {
			n := utf8.RuneCountInString(partial)
			j.advance(StageScripting, min(float64(n)/expected, 0.95),
				fmt.Sprintf("Writing script: %d characters", n))
		})
		m.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			m.metrics.RecordProviderError(ctx, "llm", types.Classify(err))
			if j.checkpoint(ctx) != nil {
				return types.ErrCancelled
			}
			return fmt.Errorf("generation: write script: %w", err)
		}
		m.metrics.RecordProviderRequest(ctx, "llm", "script", "ok")

		units, cites = prepareUnits(script.Parse(raw), len(articles))
		if len(units) == 0 {
			return fmt.Errorf("generation: script has no dialogue lines: %w", types.ErrContent)
		}
		text = script.Render(units)
		j.advance(StageScripting, 1, fmt.Sprintf("Script ready: %d lines", len(units)))
		return nil
	})
	return units, cites, text, err
}

// prepareUnits strips citation markers from each unit and drops units left
// without text. Citations outside [0, articles) are discarded.
func prepareUnits(parsed []types.DialogueUnit, articles int) ([]types.DialogueUnit, [][]int) {
	units := make([]types.DialogueUnit, 0, len(parsed))
	cites := make([][]int, 0, len(parsed))
	for _, u := range parsed {
		clean, idx := script.ExtractCitations(u.Text)
		if clean == "" {
			continue
		}
		valid := idx[:0]
		for _, i := range idx {
			if i >= 0 && i < articles {
				valid = append(valid, i)
			}
		}
		if len(valid) == 0 {
			valid = nil
		}
		u.Text = clean
		units = append(units, u)
		cites = append(cites, valid)
	}
	return units, cites
}

// ── Synthesize ────────────────────────────────────────────────────────────────

func (m *Manager) synthStage(ctx context.Context, j *job, units []types.DialogueUnit, cites [][]int, voices Voices) (*audio.Stitched, error) {
	var merged *audio.Stitched
	total := len(units)
	err := m.stage(ctx, j, StageSynthesizing, fmt.Sprintf("Synthesizing %d utterances", total), func(ctx context.Context) error {
		parts := make([]audio.Utterance, 0, total)
		for i, u := range units {
			if err := j.checkpoint(ctx); err != nil {
				return err
			}

			voice := tts.VoiceProfile{ID: voices.A, SpeedFactor: voices.SpeedFactor}
			if u.Speaker == types.SpeakerB {
				voice.ID = voices.B
			}

			start := time.Now()
			clip, err := m.tts.Synthesize(ctx, u, voice)
			if err != nil {
				if j.checkpoint(ctx) != nil {
					return types.ErrCancelled
				}
				m.metrics.RecordProviderError(ctx, "tts", types.Classify(err))
				return fmt.Errorf("generation: synthesize utterance %d (%s): %w", u.Index, u.Speaker, err)
			}
			m.metrics.RecordUtterance(ctx, u.Speaker.String(), time.Since(start).Seconds())

			parts = append(parts, audio.Utterance{Unit: u, Clip: clip, Sources: cites[i]})
			j.advance(StageSynthesizing, float64(i+1)/float64(total),
				fmt.Sprintf("Synthesized utterance %d of %d", i+1, total))
		}

		stitcher := audio.Stitcher{Target: m.format, Logger: m.log}
		var err error
		merged, err = stitcher.Stitch(parts)
		if err != nil {
			return fmt.Errorf("generation: stitch: %w", err)
		}
		if n := len(merged.Skipped); n > 0 {
			m.metrics.SkippedClips.Add(ctx, int64(n))
		}
		if len(merged.Segments) == 0 {
			return fmt.Errorf("generation: none of %d utterances produced audio: %w", total, types.ErrAudioProcessing)
		}
		return nil
	})
	return merged, err
}

// ── Integrated ────────────────────────────────────────────────────────────────

func (m *Manager) integratedStage(ctx context.Context, j *job, t Topic, articles []types.Article, voices Voices) (*audio.Stitched, error) {
	var merged *audio.Stitched
	err := m.stage(ctx, j, StageScripting, "Sending articles to the podcast service", func(ctx context.Context) error {
		req := podcast.Request{
			Text:   sourceText(cmpTitle(t), articles, m.prompt),
			VoiceA: voices.A,
			VoiceB: voices.B,
		}

		start := time.Now()
		clip, err := m.podcast.Generate(ctx, req, func(s podcast.Status) {
			status := s.Message
			if status == "" {
				status = "Podcast service: " + s.Phase
			}
			p := s.Progress
			if p < 0 {
				p = 0
			}
			stage := StageScripting
			if p >= 0.5 {
				stage = StageSynthesizing
			}
			if snap, changed := j.setProgress(stage, integratedLo, integratedHi, p, status); changed {
				m.publish(ctx, snap)
			}
		})
		m.metrics.PodcastDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			if j.checkpoint(ctx) != nil {
				return types.ErrCancelled
			}
			m.metrics.RecordProviderError(ctx, "podcast", types.Classify(err))
			return fmt.Errorf("generation: podcast service: %w", err)
		}
		m.metrics.RecordProviderRequest(ctx, "podcast", "generate", "ok")

		pcm, f, err := clip.PCM()
		if err != nil {
			return fmt.Errorf("generation: podcast service audio: %w: %w", types.ErrAudioProcessing, err)
		}
		conv := audio.FormatConverter{Target: m.format, Logger: m.log}
		pcm = conv.Convert(pcm, f)
		if len(pcm) == 0 {
			return fmt.Errorf("generation: podcast service returned no playable audio: %w", types.ErrAudioProcessing)
		}
		merged = &audio.Stitched{PCM: pcm, Format: m.format}
		if snap, changed := j.setProgress(StageSynthesizing, integratedLo, integratedHi, 1, "Podcast audio received"); changed {
			m.publish(ctx, snap)
		}
		return nil
	})
	return merged, err
}

// sourceText concatenates the articles as raw input for the one-shot service.
func sourceText(title string, articles []types.Article, opts script.PromptOptions) string {
	limit := opts.MaxCharsPerArticle
	if limit <= 0 {
		limit = 1200
	}
	if opts.MaxArticles > 0 && len(articles) > opts.MaxArticles {
		articles = articles[:opts.MaxArticles]
	}
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n")
	for _, a := range articles {
		sb.WriteString("\n")
		sb.WriteString(a.Title)
		sb.WriteString("\n")
		body := []rune(strings.TrimSpace(a.Body()))
		if len(body) > limit {
			body = body[:limit]
		}
		sb.WriteString(string(body))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ── Save ──────────────────────────────────────────────────────────────────────

func (m *Manager) saveStage(ctx context.Context, j *job, t Topic, articles []types.Article, merged *audio.Stitched, scriptText string) (*types.Podcast, error) {
	var saved *types.Podcast
	err := m.stage(ctx, j, StageSaving, "Writing audio", func(ctx context.Context) error {
		snap := j.snapshot()
		if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
			return fmt.Errorf("generation: create output dir: %w: %w", types.ErrAudioProcessing, err)
		}
		path := filepath.Join(m.outputDir, snap.JobID+".wav")
		if err := merged.ExportFile(path); err != nil {
			return fmt.Errorf("generation: %w", err)
		}
		j.advance(StageSaving, 0.5, "Saving podcast")

		if err := j.commit(); err != nil {
			_ = os.Remove(path)
			return err
		}

		p := types.Podcast{
			Title:           fmt.Sprintf("%s %s", cmpTitle(t), snap.StartedAt.Format("2006-01-02 15:04")),
			Topics:          snap.Topics,
			DurationSeconds: merged.Duration(),
			ScriptText:      scriptText,
			AudioPath:       path,
			Segments:        merged.Segments,
			SourceArticles:  articles,
		}
		id, err := m.store.Save(ctx, p)
		if err != nil {
			_ = os.Remove(path)
			return fmt.Errorf("generation: save podcast: %w", err)
		}
		p.ID = id
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		saved = &p
		return nil
	})
	return saved, err
}

func snapCancelled(j *job) bool {
	return j.snapshot().Cancelled
}

func cmpTitle(t Topic) string {
	if t.Title != "" {
		return t.Title
	}
	return t.Name
}
