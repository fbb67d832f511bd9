package session

import (
	"fmt"
	"math"
	"time"
)

// QAPair is one completed turn: a question, the spoken answer, and the
// analyzed emotion. Immutable once appended to the session record.
type QAPair struct {
	Question                 string             `bson:"question" json:"question"`
	Answer                   string             `bson:"answer" json:"answer"`
	Emotion                  string             `bson:"emotion" json:"emotion"`
	Confidence               float64            `bson:"confidence" json:"confidence"`
	NegativeEmotionBreakdown map[string]float64 `bson:"negative_emotion_breakdown,omitempty" json:"negative_emotion_breakdown,omitempty"`
	IsDirect                 bool               `bson:"is_direct" json:"is_direct"`
}

// AgentSession is the write-once persisted aggregate built at session end
// from the accumulated turns.
type AgentSession struct {
	SessionID           string    `bson:"session_id" json:"session_id"`
	CreatedAt           time.Time `bson:"created_at" json:"created_at"`
	EndedAt             time.Time `bson:"ended_at" json:"ended_at"`
	QAPairs             []QAPair  `bson:"qa_pairs" json:"qa_pairs"`
	FinalEmotion        string    `bson:"final_emotion" json:"final_emotion"`
	FinalConfidence     float64   `bson:"final_confidence" json:"final_confidence"`
	TotalQuestionCount  int       `bson:"total_question_count" json:"total_question_count"`
	DirectQuestionCount int       `bson:"direct_question_count" json:"direct_question_count"`
	StopReason          string    `bson:"stop_reason" json:"stop_reason"`
	AudioURL            string    `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
}

// breakdownTolerance is the rounding slack allowed when checking that a
// negative-emotion breakdown sums to 100.
const breakdownTolerance = 1.0

// maxDirectQuestions is the hard invariant on the persisted record; the
// runtime stopping rule is configurable but never exceeds this.
const maxDirectQuestions = 5

// Validate checks the record invariants before persistence.
func (a *AgentSession) Validate() error {
	if a.SessionID == "" {
		return fmt.Errorf("agent session: missing session id")
	}
	if a.DirectQuestionCount < 0 || a.DirectQuestionCount > maxDirectQuestions {
		return fmt.Errorf("agent session %s: direct question count %d out of range", a.SessionID, a.DirectQuestionCount)
	}
	if a.DirectQuestionCount > a.TotalQuestionCount {
		return fmt.Errorf("agent session %s: direct count %d exceeds total %d", a.SessionID, a.DirectQuestionCount, a.TotalQuestionCount)
	}
	if a.FinalConfidence < 0 || a.FinalConfidence > 1 {
		return fmt.Errorf("agent session %s: final confidence %v out of range", a.SessionID, a.FinalConfidence)
	}
	for i, p := range a.QAPairs {
		if p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("agent session %s: pair %d confidence %v out of range", a.SessionID, i, p.Confidence)
		}
		if len(p.NegativeEmotionBreakdown) > 0 {
			var sum float64
			for _, v := range p.NegativeEmotionBreakdown {
				sum += v
			}
			if math.Abs(sum-100) > breakdownTolerance {
				return fmt.Errorf("agent session %s: pair %d breakdown sums to %v", a.SessionID, i, sum)
			}
		}
	}
	return nil
}
