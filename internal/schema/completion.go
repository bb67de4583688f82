package schema

import (
	"fmt"
	"strings"
)

const (
	defaultVoice = VoiceAlloy
	defaultSpeed = 1.0

	// MinSpeed and MaxSpeed bound the playback speed.
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

// Voice names a synthesized voice offered by the backend.
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

// Voices lists every supported voice.
var Voices = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}

// Valid reports whether v is a supported voice.
func (v Voice) Valid() bool {
	for _, known := range Voices {
		if v == known {
			return true
		}
	}
	return false
}

// VoiceOptions controls how an audio reply is synthesized and played.
// Speed is applied client side at playback start.
type VoiceOptions struct {
	Voice Voice   `json:"voice" yaml:"voice"`
	Speed float64 `json:"speed" yaml:"speed"`
}

// CompletionRequest is the multipart upload sent to /assistant/completion.
type CompletionRequest struct {
	Text          string
	EncodedImage  string
	GenerateAudio bool
	Voice         *VoiceOptions
}

// Validate applies default values and validates the request.
func (r *CompletionRequest) Validate() error {
	r.applyDefaults()

	if strings.TrimSpace(r.Text) == "" && r.EncodedImage == "" {
		return fmt.Errorf("text or image is required")
	}

	if r.Voice != nil {
		if !r.Voice.Voice.Valid() {
			return fmt.Errorf("voice must be one of %s", joinVoices())
		}
		if r.Voice.Speed < MinSpeed || r.Voice.Speed > MaxSpeed {
			return fmt.Errorf("speed must be between 0.25 and 4.0")
		}
	}

	return nil
}

func (r *CompletionRequest) applyDefaults() {
	if r.Voice == nil {
		return
	}
	if r.Voice.Voice == "" {
		r.Voice.Voice = defaultVoice
	}
	if r.Voice.Speed == 0 {
		r.Voice.Speed = defaultSpeed
	}
}

// Fields returns the multipart form fields, omitting empty text and absent image.
func (r *CompletionRequest) Fields() map[string]string {
	fields := map[string]string{
		"generate_audio": fmt.Sprintf("%t", r.GenerateAudio),
	}
	if r.Text != "" {
		fields["text"] = r.Text
	}
	if r.EncodedImage != "" {
		fields["encoded_image"] = r.EncodedImage
	}
	if r.Voice != nil && r.Voice.Voice != "" {
		fields["openai_voice"] = string(r.Voice.Voice)
	}
	return fields
}

func joinVoices() string {
	names := make([]string, len(Voices))
	for i, v := range Voices {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
