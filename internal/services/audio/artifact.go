// Package audio prepares LINE voice messages for the model.
//
// LINE delivers voice messages as m4a (AAC). Each message gets its own
// scratch directory, ffmpeg turns the download into mp3, and go-mp3 checks the
// result is decodable before it is uploaded. The directory is removed when
// the job ends, whatever the outcome.
package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/apperr"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Artifact is the scratch space for one message.
type Artifact struct {
	dir       string
	messageID string
}

// NewArtifact creates a private directory under root for messageID.
func NewArtifact(root, messageID string) (*Artifact, error) {
	id := unsafeChars.ReplaceAllString(messageID, "_")
	if id == "" {
		return nil, apperr.Audio("empty message id", nil)
	}
	dir, err := os.MkdirTemp(root, "voice-"+id+"-")
	if err != nil {
		return nil, apperr.Audio("failed to create temp dir", err)
	}
	return &Artifact{dir: dir, messageID: id}, nil
}

// Path returns the file for this message with the given extension (".m4a").
func (a *Artifact) Path(ext string) string {
	return filepath.Join(a.dir, a.messageID+ext)
}

// Dir is the artifact's directory.
func (a *Artifact) Dir() string { return a.dir }

// Write copies r into Path(ext) and returns the number of bytes written.
func (a *Artifact) Write(ext string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(a.Path(ext), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, apperr.Audio("failed to create artifact", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, apperr.Audio(fmt.Sprintf("failed to write %s", a.Path(ext)), err)
	}
	if n == 0 {
		return 0, apperr.Audio("downloaded audio is empty", nil)
	}
	return n, nil
}

// Remove deletes the directory and everything in it. It is safe to call more
// than once.
func (a *Artifact) Remove() error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("removing %s: %w", a.dir, err)
	}
	return nil
}
