package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
)

// Info describes a decoded mp3.
type Info struct {
	SampleRate int
	Duration   time.Duration
}

// Transcoder runs ffmpeg.
type Transcoder struct {
	ffmpegPath string
}

// NewTranscoder creates a Transcoder using the ffmpeg binary at path.
func NewTranscoder(ffmpegPath string) *Transcoder {
	return &Transcoder{ffmpegPath: ffmpegPath}
}

// ToMP3 converts src into an mp3 at dst and probes the result. On failure dst
// does not exist afterwards.
func (t *Transcoder) ToMP3(ctx context.Context, src, dst string) (Info, error) {
	// exec.CommandContext kills ffmpeg if the job is cancelled.
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-vn", // drop cover art streams
		"-codec:a", "libmp3lame",
		"-q:a", "4",
		dst,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(dst)
		return Info{}, apperr.Audio(fmt.Sprintf("ffmpeg failed: %s", strings.TrimSpace(string(output))), err)
	}

	info, err := Probe(dst)
	if err != nil {
		os.Remove(dst)
		return Info{}, err
	}
	return info, nil
}

// Probe decodes the mp3 at path far enough to know its length.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, apperr.Audio("failed to open mp3", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return Info{}, apperr.Audio("not a decodable mp3", err)
	}

	// go-mp3 always yields 16-bit stereo: 4 bytes per sample frame.
	n := dec.Length()
	if n < 0 {
		n, err = io.Copy(io.Discard, dec)
		if err != nil {
			return Info{}, apperr.Audio("failed to decode mp3", err)
		}
	}
	if n == 0 || dec.SampleRate() <= 0 {
		return Info{}, apperr.Audio("mp3 contains no audio", nil)
	}

	return Info{
		SampleRate: dec.SampleRate(),
		Duration:   time.Duration(n) * time.Second / time.Duration(4*dec.SampleRate()),
	}, nil
}
