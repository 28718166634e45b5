package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jayesh4work/audio-assistant-extension/internal/apperr"
	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
	"github.com/jayesh4work/audio-assistant-extension/internal/transcription"
)

var (
	transcribeLanguage string
	transcribeProvider string
	transcribeMIME     string
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe FILE",
	Short: "Submit an audio file for transcription",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func init() {
	transcribeCmd.Flags().StringVar(&transcribeLanguage, "language", "", "transcription language (default from settings)")
	transcribeCmd.Flags().StringVar(&transcribeProvider, "provider", "", "speech-to-text provider (default from settings)")
	transcribeCmd.Flags().StringVar(&transcribeMIME, "mime", "", "media type of FILE (default from extension)")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	mimeType := transcribeMIME
	if mimeType == "" {
		mimeType = mimeTypeFor(path)
	}

	duration, err := wavDuration(data, mimeType)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background(), logger)

	outcome, err := a.assistant.Transcribe(ctx, data, mimeType, transcribeLanguage, toProvider(transcribeProvider), duration)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(outcome.Result)
}

// wavDuration checks WAV input before it is uploaded and measures its length.
// Other media types report zero.
func wavDuration(data []byte, mimeType string) (float64, error) {
	if mimeType != "audio/wav" {
		return 0, nil
	}
	if err := audio.ValidateWAV(data); err != nil {
		return 0, apperr.Wrap(apperr.InvalidInput, "Audio file is not a valid WAV recording", err)
	}
	info, err := audio.GetWAVInfo(data)
	if err != nil {
		return 0, apperr.Wrap(apperr.InvalidInput, "Audio file is not a valid WAV recording", err)
	}
	return info.Duration, nil
}

// mimeTypeFor guesses the media type from the file extension.
func mimeTypeFor(path string) string {
	switch ext := filepath.Ext(path); ext {
	case ".wav":
		return "audio/wav"
	case ".ulaw", ".ul":
		return "audio/basic"
	case ".pcm", ".raw":
		return "audio/L16"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

func toProvider(s string) transcription.Provider {
	return transcription.Provider(s)
}
