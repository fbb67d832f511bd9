package mock

import (
	"context"
	"sync"

	"github.com/emora-ai/emora/pkg/analysis"
)

// Analyzer replays a script of emotion readings, one per Analyze call.
// The last entry repeats once the script is exhausted.
type Analyzer struct {
	mu      sync.Mutex
	script  []analysis.Emotion
	errs    []error
	calls   int
	answers []string
}

func NewAnalyzer(script ...analysis.Emotion) *Analyzer {
	return &Analyzer{script: script}
}

// FailWith makes call n (zero-based) return err instead of a reading.
func (a *Analyzer) FailWith(n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.errs) <= n {
		a.errs = append(a.errs, nil)
	}
	a.errs[n] = err
}

func (a *Analyzer) Analyze(ctx context.Context, transcript string, history []analysis.Exchange) (analysis.Emotion, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.calls
	a.calls++
	a.answers = append(a.answers, transcript)
	if n < len(a.errs) && a.errs[n] != nil {
		return analysis.Emotion{}, a.errs[n]
	}
	if len(a.script) == 0 {
		return analysis.Emotion{Label: "Calm", Confidence: 0.5}, nil
	}
	if n >= len(a.script) {
		n = len(a.script) - 1
	}
	return a.script[n], nil
}

func (a *Analyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *Analyzer) Answers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.answers))
	copy(out, a.answers)
	return out
}

// Generator replays scripted follow-up questions.
type Generator struct {
	mu      sync.Mutex
	script  []analysis.Question
	calls   int
	prompts []analysis.Prompt
}

func NewGenerator(script ...analysis.Question) *Generator {
	return &Generator{script: script}
}

func (g *Generator) NextQuestion(ctx context.Context, p analysis.Prompt) (analysis.Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.calls
	g.calls++
	g.prompts = append(g.prompts, p)
	if len(g.script) == 0 {
		return analysis.Question{Text: "Tell me more about that.", IsDirect: true}, nil
	}
	if n >= len(g.script) {
		n = len(g.script) - 1
	}
	return g.script[n], nil
}

func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Prompts returns a copy of every prompt passed to NextQuestion.
func (g *Generator) Prompts() []analysis.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]analysis.Prompt, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// Recommender returns a fixed song.
type Recommender struct {
	Song string

	mu     sync.Mutex
	calls  int
	err    error
	finals []analysis.Emotion
}

func NewRecommender(song string) *Recommender {
	return &Recommender{Song: song}
}

func (r *Recommender) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recommender) Recommend(ctx context.Context, history []analysis.Exchange, final analysis.Emotion) (analysis.Recommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.finals = append(r.finals, final)
	if r.err != nil {
		return analysis.Recommendation{}, r.err
	}
	return analysis.Recommendation{Song: r.Song}, nil
}

// Finals returns the final emotion passed to each Recommend call.
func (r *Recommender) Finals() []analysis.Emotion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]analysis.Emotion, len(r.finals))
	copy(out, r.finals)
	return out
}

func (r *Recommender) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var (
	_ analysis.EmotionAnalyzer   = (*Analyzer)(nil)
	_ analysis.QuestionGenerator = (*Generator)(nil)
	_ analysis.MusicRecommender  = (*Recommender)(nil)
)
