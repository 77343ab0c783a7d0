// Package persist serializes the checkpoint store and session call log to a
// single JSON document and writes it durably (temp file + rename). Every
// field round-trips exactly; file content is byte-exact regardless of
// whether it is valid text.
package persist

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/rewind/internal/snapshot"
)

// formatVersion is bumped on incompatible document layout changes.
const formatVersion = 1

// Content encoding tags. Text-safe content is stored raw for readable
// store files; anything else is base64.
const (
	encodingUTF8   = "utf8"
	encodingBase64 = "base64"
)

// ErrCorrupt indicates the store document could not be decoded.
var ErrCorrupt = errors.New("corrupt store document")

// SessionState is the persisted shape of a session: workspace root,
// extension allowlist, and the append-only call log.
type SessionState struct {
	WorkspaceRoot string      `json:"workspace_root"`
	Extensions    []string    `json:"extensions"`
	Calls         []CallState `json:"calls"`
}

// CallState is one persisted call record.
type CallState struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	CheckpointID string    `json:"checkpoint_id"`
	TrackedFiles []string  `json:"tracked_files"`
	Status       string    `json:"status"`
}

type document struct {
	Version     int             `json:"version"`
	Checkpoints []checkpointDoc `json:"checkpoints"`
	Session     *SessionState   `json:"session,omitempty"`
}

type checkpointDoc struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Files       []fileDoc `json:"files"`
}

type fileDoc struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	Fingerprint string `json:"fingerprint"`
}

// Encode serializes checkpoints (in creation order) and optional session
// state into the durable document form.
func Encode(checkpoints []*snapshot.Checkpoint, session *SessionState) ([]byte, error) {
	doc := document{
		Version:     formatVersion,
		Checkpoints: make([]checkpointDoc, 0, len(checkpoints)),
		Session:     session,
	}
	for _, cp := range checkpoints {
		cpDoc := checkpointDoc{
			ID:          cp.ID,
			Name:        cp.Name,
			Description: cp.Description,
			CreatedAt:   cp.CreatedAt,
			Files:       make([]fileDoc, 0, cp.Len()),
		}
		for _, snap := range cp.Files() {
			cpDoc.Files = append(cpDoc.Files, encodeFile(snap))
		}
		doc.Checkpoints = append(doc.Checkpoints, cpDoc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a document produced by Encode. Checkpoint ids and
// fingerprints are taken verbatim from the document; fingerprints are
// verified against the decoded content.
func Decode(data []byte) ([]*snapshot.Checkpoint, *SessionState, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != formatVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, doc.Version)
	}

	checkpoints := make([]*snapshot.Checkpoint, 0, len(doc.Checkpoints))
	for _, cpDoc := range doc.Checkpoints {
		if cpDoc.ID == "" {
			return nil, nil, fmt.Errorf("%w: checkpoint with empty id", ErrCorrupt)
		}
		snaps := make([]snapshot.FileSnapshot, 0, len(cpDoc.Files))
		for _, f := range cpDoc.Files {
			content, err := decodeContent(f)
			if err != nil {
				return nil, nil, err
			}
			if got := snapshot.Fingerprint(content); f.Fingerprint != "" && got != f.Fingerprint {
				return nil, nil, fmt.Errorf("%w: fingerprint mismatch for %s in checkpoint %s",
					ErrCorrupt, f.Path, cpDoc.ID)
			}
			snaps = append(snaps, snapshot.FileSnapshot{
				Path:        f.Path,
				Content:     content,
				Fingerprint: f.Fingerprint,
			})
		}
		checkpoints = append(checkpoints,
			snapshot.NewCheckpoint(cpDoc.ID, cpDoc.Name, cpDoc.Description, cpDoc.CreatedAt, snaps))
	}
	return checkpoints, doc.Session, nil
}

func encodeFile(snap snapshot.FileSnapshot) fileDoc {
	doc := fileDoc{
		Path:        snap.Path,
		Fingerprint: snap.Fingerprint,
	}
	if utf8.Valid(snap.Content) {
		doc.Encoding = encodingUTF8
		doc.Content = string(snap.Content)
	} else {
		doc.Encoding = encodingBase64
		doc.Content = base64.StdEncoding.EncodeToString(snap.Content)
	}
	return doc
}

func decodeContent(f fileDoc) ([]byte, error) {
	switch f.Encoding {
	case encodingUTF8, "":
		return []byte(f.Content), nil
	case encodingBase64:
		content, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64 content for %s: %v", ErrCorrupt, f.Path, err)
		}
		return content, nil
	default:
		return nil, fmt.Errorf("%w: unknown content encoding %q for %s", ErrCorrupt, f.Encoding, f.Path)
	}
}

// SaveFile writes data to path atomically: the bytes land in a temp file in
// the same directory which is then renamed over path, so a crash or a
// concurrent save leaves either the old or the new document, never a
// truncated one.
func SaveFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp store file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing store file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing store file: %w", closeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

// LoadFile reads a previously saved document.
func LoadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	return data, nil
}
