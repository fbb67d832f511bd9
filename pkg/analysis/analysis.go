// Package analysis defines the typed contracts for the delegate analyzers
// the conversation loop calls out to: emotion analysis, next-question
// generation, and music recommendation. Their reasoning is opaque; the loop
// only depends on these request/response shapes.
package analysis

import "context"

// Emotion is the analyzer's verdict for one answer.
type Emotion struct {
	Label      string
	Confidence float64
	// NegativeBreakdown maps negative emotion labels to percentages summing
	// to 100. Present only when negative emotions were detected.
	NegativeBreakdown map[string]float64
}

// Question is one generated question and its type flag. Direct questions are
// capped per conversation; indirect ones are not.
type Question struct {
	Text     string
	IsDirect bool
}

// Recommendation is a single concrete song suggestion.
type Recommendation struct {
	Song string
}

// Exchange is one prior question/answer pair with its analyzed emotion,
// passed as context to the collaborators.
type Exchange struct {
	Question   string
	Answer     string
	Emotion    string
	Confidence float64
}

// Prompt carries the structured conversation state for question generation.
// Flags like HighConfidenceReached are first-class fields here, never
// free-text embedded in prompt strings on the caller side.
type Prompt struct {
	History               []Exchange
	CurrentAnswer         string
	CurrentEmotion        Emotion
	DirectCount           int
	MaxDirectQuestions    int
	HighConfidenceReached bool
	MusicReminderGiven    bool
}

type EmotionAnalyzer interface {
	Analyze(ctx context.Context, transcript string, history []Exchange) (Emotion, error)
}

type QuestionGenerator interface {
	NextQuestion(ctx context.Context, prompt Prompt) (Question, error)
}

type MusicRecommender interface {
	// Recommend suggests a song for the conversation. Callers must pass a
	// defined neutral default when no emotion was ever analyzed.
	Recommend(ctx context.Context, history []Exchange, final Emotion) (Recommendation, error)
}
