package transcription

import (
	"strings"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
)

// Provider names the speech-to-text backend the endpoint should use.
type Provider string

const (
	ProviderGroq       Provider = "groq"
	ProviderWhisperCPP Provider = "whisper_cpp"
	ProviderOpenAI     Provider = "openai"
	ProviderClaude     Provider = "claude"
	ProviderCustom     Provider = "custom"
)

// Providers lists every known provider.
var Providers = []Provider{ProviderGroq, ProviderWhisperCPP, ProviderOpenAI, ProviderClaude, ProviderCustom}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", apperr.Newf(apperr.InvalidInput, "unknown speech-to-text provider %q", s)
}

// filenameFor names the uploaded audio part after its media type.
func filenameFor(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch mt {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return "recording.wav"
	case "audio/basic", "audio/pcmu", "audio/x-mulaw":
		return "recording.ulaw"
	case "audio/l16", "audio/pcm":
		return "recording.pcm"
	case "audio/ogg":
		return "recording.ogg"
	}
	return "recording.webm"
}
