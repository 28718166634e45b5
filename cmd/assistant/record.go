package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jayesh4work/audio-assistant-extension/internal/audio"
)

var (
	recordMode       string
	recordDuration   time.Duration
	recordOut        string
	recordTranscribe bool
	recordLanguage   string
	recordProvider   string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the configured capture driver and write the artifact",
	RunE:  runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordMode, "mode", "", "audio mode: mic-only, tab-only or mic+tab (default from settings)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 5*time.Second, "recording length; Ctrl-C stops early")
	recordCmd.Flags().StringVar(&recordOut, "out", "recording.wav", "output file")
	recordCmd.Flags().BoolVar(&recordTranscribe, "transcribe", false, "send the recording for transcription")
	recordCmd.Flags().StringVar(&recordLanguage, "language", "", "transcription language")
	recordCmd.Flags().StringVar(&recordProvider, "provider", "", "speech-to-text provider")
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordDuration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", recordDuration)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background(), logger)

	report, err := a.assistant.StartRecording(ctx, audio.Mode(recordMode))
	if err != nil {
		return err
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	select {
	case <-time.After(recordDuration):
	case <-ctx.Done():
	}

	var (
		artifactData []byte
		summary      = map[string]interface{}{"session_id": report.SessionID}
	)
	if recordTranscribe {
		outcome, err := a.assistant.StopAndTranscribe(context.Background(), recordLanguage, toProvider(recordProvider))
		if outcome != nil && outcome.Artifact != nil {
			artifactData = outcome.Artifact.Data
			summary["artifact"] = outcome.Artifact
		}
		if err != nil {
			writeArtifact(artifactData)
			return err
		}
		summary["result"] = outcome.Result
	} else {
		artifact, err := a.assistant.Recorder().Stop()
		if err != nil {
			return err
		}
		artifactData = artifact.Data
		summary["artifact"] = artifact
	}

	if err := writeArtifact(artifactData); err != nil {
		return err
	}
	summary["out"] = recordOut

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func writeArtifact(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := os.WriteFile(recordOut, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", recordOut, err)
	}
	logger.Info("Recording written", slog.String("path", recordOut), slog.Int("bytes", len(data)))
	return nil
}
