package chat

import "strings"

// Model identifiers the send orchestrator special-cases. The partition into
// streaming-capable and single-shot models is a static allowlist owned here;
// the mode is never inferred from the response.
const (
	TranscribeModel = "gpt-4o-transcribe"
	TTSModel        = "gpt-4o-mini-tts"
)

// singleShotModels answer with one JSON payload (image/audio generators and
// reasoning models without a streamed surface) instead of a streamed text
// body.
var singleShotModels = map[string]struct{}{
	TTSModel:        {},
	"dall-e-3":      {},
	"gpt-5":         {},
	"gpt-5-mini":    {},
	TranscribeModel: {},
}

// StreamingCapable reports whether the model's completion is delivered
// incrementally.
func StreamingCapable(model string) bool {
	_, singleShot := singleShotModels[model]
	return !singleShot
}

// IsRealtimeModel reports whether the model drives the live voice surface
// rather than the send pipeline.
func IsRealtimeModel(model string) bool {
	return strings.Contains(model, "realtime") || strings.Contains(model, "gpt-4o-voice")
}
