package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
)

// wavHeaderSize is the size of the canonical 44-byte PCM WAV header.
const wavHeaderSize = 44

// streamingSize marks RIFF/data sizes that are unknown while a recording is
// still being captured.
const streamingSize = 0xFFFFFFFF

// WAVHeader is the canonical PCM WAV header.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * 2
	BlockAlign    uint16 // NumChannels * 2
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

func newWAVHeader(format goaudio.Format, dataSize uint32) WAVHeader {
	channels := uint16(format.NumChannels)
	chunkSize := uint32(streamingSize)
	if dataSize != streamingSize {
		chunkSize = 36 + dataSize
	}
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     chunkSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.SampleRate) * uint32(channels) * 2,
		BlockAlign:    channels * 2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

func validFormat(format goaudio.Format) error {
	if format.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", format.SampleRate)
	}
	if format.NumChannels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", format.NumChannels)
	}
	return nil
}

// StreamingWAVHeader returns a header whose sizes are marked unknown, for
// recordings whose length is only known once capture stops.
func StreamingWAVHeader(format goaudio.Format) ([]byte, error) {
	if err := validFormat(format); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, newWAVHeader(format, streamingSize)); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return buf.Bytes(), nil
}

// ValidateWAV checks the RIFF/WAVE/fmt/data markers without decoding.
func ValidateWAV(data []byte) error {
	if len(data) < wavHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}
	return nil
}

// WAVInfo describes a WAV payload.
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
	Streaming     bool    `json:"streaming"`
}

// GetWAVInfo extracts metadata. Streaming headers are measured from the
// bytes actually present.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := readWAVHeader(data)
	if err != nil {
		return nil, err
	}
	if header.SampleRate == 0 || header.NumChannels == 0 || header.BitsPerSample == 0 {
		return nil, fmt.Errorf("invalid WAV header: zero sample rate, channels or bit depth")
	}

	payload := dataPayload(data, header)
	frameBytes := uint32(header.NumChannels) * uint32(header.BitsPerSample) / 8
	frames := uint32(len(payload)) / frameBytes

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(frames) / float64(header.SampleRate),
		DataSize:      uint32(len(payload)),
		NumFrames:     frames,
		Streaming:     header.Subchunk2Size == streamingSize,
	}, nil
}

func readWAVHeader(data []byte) (WAVHeader, error) {
	var header WAVHeader
	if err := ValidateWAV(data); err != nil {
		return header, err
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return header, fmt.Errorf("failed to read WAV header: %w", err)
	}
	return header, nil
}

func dataPayload(data []byte, header WAVHeader) []byte {
	payload := data[wavHeaderSize:]
	if header.Subchunk2Size != streamingSize && int(header.Subchunk2Size) < len(payload) {
		payload = payload[:header.Subchunk2Size]
	}
	return payload
}

// FloatToPCM16 converts a float sample to PCM-16, clamping to [-1, 1].
func FloatToPCM16(s float64) int16 {
	if math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// PCM16ToFloat converts a PCM-16 sample into [-1, 1].
func PCM16ToFloat(s int16) float64 {
	if s < 0 {
		return float64(s) / 0x8000
	}
	return float64(s) / 0x7FFF
}

// AppendPCM16 appends samples as little-endian PCM-16 bytes.
func AppendPCM16(dst []byte, samples []float64) []byte {
	for _, s := range samples {
		v := uint16(FloatToPCM16(s))
		dst = append(dst, byte(v), byte(v>>8))
	}
	return dst
}
