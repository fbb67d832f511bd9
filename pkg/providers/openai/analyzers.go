package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/emora-ai/emora/pkg/analysis"
	"github.com/emora-ai/emora/pkg/errorsx"
)

const emotionSystemPrompt = `You are an emotion detection agent. Analyze the user's emotional state from their message.

Positive emotions: Happy, Motivated, Calm, Relaxed, Focused.
Negative emotions: Depressed, Sad, Stressed, Anxious, Angry, Frustrated, Unfocused, Confused.

Determine the primary emotion and a confidence score between 0.0 and 1.0.
If negative emotions are present, include a percentage breakdown of which ones; the percentages must sum to 100.

Reply with a JSON object:
{"emotion": "...", "confidence": 0.0, "negative_emotion_percentages": {"Sad": 60, "Anxious": 40}}
Omit negative_emotion_percentages when no negative emotions were detected.`

const questionSystemPrompt = `You are an expert conversation agent for an emotional support assistant.
Your job is to ask the next question to better understand how the user is feeling.

Indirect questions are open-ended and unlimited. Direct questions are specific emotion checks and capped per conversation.
Generate ONE question at a time.

If the context says the music reminder is due, append this exact sentence to the question:
" By the way, if you'd like to hear a song, just say 'Play me some music'."
Never append it otherwise.

Reply with a JSON object: {"question": "...", "is_direct": false}`

const musicSystemPrompt = `You are an expert music recommendation agent.
Based on the conversation history and detected emotions, suggest ONE specific real song that matches the user's emotional state and helps regulate it.

Reply with a JSON object: {"song": "Song Title by Artist"}`

// Analyzer implements analysis.EmotionAnalyzer.
type Analyzer struct{ client *Client }

func NewAnalyzer(client *Client) *Analyzer { return &Analyzer{client: client} }

func (a *Analyzer) Analyze(ctx context.Context, transcript string, history []analysis.Exchange) (analysis.Emotion, error) {
	user := fmt.Sprintf("Previous Q&A pairs:\n%s\n\nUser's latest message: %q\n\nAnalyze the emotion in this message considering the conversation history.",
		historyJSON(history), transcript)

	var raw struct {
		Emotion    string             `json:"emotion"`
		Confidence float64            `json:"confidence"`
		Negative   map[string]float64 `json:"negative_emotion_percentages"`
	}
	if err := a.client.completeJSON(ctx, emotionSystemPrompt, user, &raw); err != nil {
		return analysis.Emotion{}, errorsx.Wrap(err, errorsx.ReasonAnalyzer)
	}
	result, err := analysis.Normalize(analysis.Emotion{
		Label:             raw.Emotion,
		Confidence:        raw.Confidence,
		NegativeBreakdown: raw.Negative,
	})
	if err != nil {
		return analysis.Emotion{}, errorsx.Wrap(err, errorsx.ReasonAnalyzer)
	}
	return result, nil
}

// Generator implements analysis.QuestionGenerator.
type Generator struct{ client *Client }

func NewGenerator(client *Client) *Generator { return &Generator{client: client} }

func (g *Generator) NextQuestion(ctx context.Context, prompt analysis.Prompt) (analysis.Question, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Direct questions used: %d/%d\n", prompt.DirectCount, prompt.MaxDirectQuestions)
	reminderDue := prompt.HighConfidenceReached && !prompt.MusicReminderGiven
	fmt.Fprintf(&sb, "Music reminder due: %t\n\n", reminderDue)
	fmt.Fprintf(&sb, "Previous Q&A pairs with emotions:\n%s\n\n", historyJSON(prompt.History))
	fmt.Fprintf(&sb, "User just said: %q\n", prompt.CurrentAnswer)
	fmt.Fprintf(&sb, "Detected emotion: %s (confidence: %.2f)\n\n", prompt.CurrentEmotion.Label, prompt.CurrentEmotion.Confidence)
	sb.WriteString("Generate the next question to better understand the user's feelings, considering what they just said and the detected emotion.")

	var raw struct {
		Question string `json:"question"`
		IsDirect bool   `json:"is_direct"`
	}
	if err := g.client.completeJSON(ctx, questionSystemPrompt, sb.String(), &raw); err != nil {
		return analysis.Question{}, errorsx.Wrap(err, errorsx.ReasonGenerator)
	}
	if strings.TrimSpace(raw.Question) == "" {
		return analysis.Question{}, errorsx.Wrap(errors.New("generator returned empty question"), errorsx.ReasonValidation)
	}
	return analysis.Question{Text: raw.Question, IsDirect: raw.IsDirect}, nil
}

// Recommender implements analysis.MusicRecommender.
type Recommender struct{ client *Client }

func NewRecommender(client *Client) *Recommender { return &Recommender{client: client} }

func (r *Recommender) Recommend(ctx context.Context, history []analysis.Exchange, final analysis.Emotion) (analysis.Recommendation, error) {
	user := fmt.Sprintf("Final emotion: %s (confidence: %.2f)\n\nFull conversation history with emotions:\n%s\n\nRecommend a song that matches the user's emotional state.",
		final.Label, final.Confidence, historyJSON(history))

	var raw struct {
		Song string `json:"song"`
	}
	if err := r.client.completeJSON(ctx, musicSystemPrompt, user, &raw); err != nil {
		return analysis.Recommendation{}, errorsx.Wrap(err, errorsx.ReasonRecommender)
	}
	if strings.TrimSpace(raw.Song) == "" {
		return analysis.Recommendation{}, errorsx.Wrap(errors.New("recommender returned empty song"), errorsx.ReasonValidation)
	}
	return analysis.Recommendation{Song: raw.Song}, nil
}

func historyJSON(history []analysis.Exchange) string {
	if len(history) == 0 {
		return "[]"
	}
	type pair struct {
		Question   string  `json:"question"`
		Answer     string  `json:"answer"`
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
	}
	pairs := make([]pair, 0, len(history))
	for _, h := range history {
		pairs = append(pairs, pair(h))
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

var (
	_ analysis.EmotionAnalyzer   = (*Analyzer)(nil)
	_ analysis.QuestionGenerator = (*Generator)(nil)
	_ analysis.MusicRecommender  = (*Recommender)(nil)
)
