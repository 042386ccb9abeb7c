package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RecordingState is the microphone capture lifecycle.
type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingPreparing RecordingState = "preparing"
	RecordingActive    RecordingState = "recording"
	RecordingStopped   RecordingState = "stopped"
)

// RecordingResult is a finished capture handed to transcription.
type RecordingResult struct {
	URI      string
	Duration time.Duration
}

// Recorder is the platform microphone handle. It is a singleton resource;
// VoiceCapture is its sole owner and releases it on every exit path.
type Recorder interface {
	RequestPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) (RecordingResult, error)
	// Release frees the platform handle. Idempotent; safe to call when
	// nothing was armed.
	Release()
}

// VoiceCapture drives the recording state machine:
// idle → preparing → recording → stopped → idle. A single toggle alternates
// start/stop; pressing while preparing is a no-op (debounced by state).
type VoiceCapture struct {
	recorder Recorder
	notifier Notifier

	// onComplete receives (uri, duration) after a clean stop, once the
	// machine is back in idle.
	onComplete func(RecordingResult)

	mu    sync.Mutex
	state RecordingState
}

func NewVoiceCapture(recorder Recorder, notifier Notifier, onComplete func(RecordingResult)) *VoiceCapture {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &VoiceCapture{
		recorder:   recorder,
		notifier:   notifier,
		onComplete: onComplete,
		state:      RecordingIdle,
	}
}

// State returns the current machine state.
func (v *VoiceCapture) State() RecordingState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Toggle starts a recording from idle or stops an active one. In any other
// state it does nothing.
func (v *VoiceCapture) Toggle(ctx context.Context) {
	v.mu.Lock()
	switch v.state {
	case RecordingIdle:
		v.state = RecordingPreparing
		v.mu.Unlock()
		v.start(ctx)
	case RecordingActive:
		v.state = RecordingStopped
		v.mu.Unlock()
		v.stop(ctx)
	default:
		// preparing or stopped: settling, ignore the press
		v.mu.Unlock()
	}
}

func (v *VoiceCapture) setState(s RecordingState) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

func (v *VoiceCapture) start(ctx context.Context) {
	granted, err := v.recorder.RequestPermission(ctx)
	if err != nil || !granted {
		if err != nil {
			slog.Warn("chat.voice.permission_error", "error", err)
		}
		v.recorder.Release()
		v.setState(RecordingIdle)
		v.notifier.Alert("خطای دسترسی", "برای ضبط صدا، نیاز به دسترسی میکروفون است.")
		return
	}

	if err := v.recorder.Start(ctx); err != nil {
		slog.Error("chat.voice.start_failed", "error", err)
		v.recorder.Release()
		v.setState(RecordingIdle)
		v.notifier.Alert("خطا", "امکان شروع ضبط صدا وجود نداشت.")
		return
	}
	v.setState(RecordingActive)
}

func (v *VoiceCapture) stop(ctx context.Context) {
	result, err := v.recorder.Stop(ctx)
	// The handle is done either way; no partial recording is retained.
	v.recorder.Release()

	if err != nil {
		slog.Error("chat.voice.stop_failed", "error", err)
		v.setState(RecordingIdle)
		v.notifier.Alert("خطا", "مشکلی در توقف ضبط رخ داد.")
		return
	}
	if result.URI == "" {
		v.setState(RecordingIdle)
		v.notifier.Alert("خطا", "فایل صوتی به درستی ذخیره نشد.")
		return
	}

	v.setState(RecordingIdle)
	if v.onComplete != nil {
		v.onComplete(result)
	}
}
