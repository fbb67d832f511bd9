package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"

	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonTTSSend    ReasonCode = "tts_send"

	ReasonAnalyzer    ReasonCode = "emotion_analyzer"
	ReasonGenerator   ReasonCode = "question_generator"
	ReasonRecommender ReasonCode = "music_recommender"
	// ReasonValidation marks malformed collaborator output (missing or
	// out-of-range required fields). Handled like a provider fault.
	ReasonValidation ReasonCode = "collaborator_validation"
	ReasonRateLimit  ReasonCode = "rate_limit"

	ReasonAudioUpload   ReasonCode = "audio_upload"
	ReasonSessionUpload ReasonCode = "session_upload"
	ReasonTranscode     ReasonCode = "audio_transcode"
)
