package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gowebpki/jcs"
	"github.com/klauspost/compress/zstd"

	"github.com/macawi-ai/domovoi/pkg/events"
)

// ErrManifestMismatch is returned when a bundle does not match its manifest.
var ErrManifestMismatch = errors.New("archive: bundle does not match manifest")

// WriteBundle writes evs as zstd-compressed JSON lines.
func WriteBundle(w io.Writer, evs []events.Event) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	je := json.NewEncoder(enc)
	for _, e := range evs {
		if err := je.Encode(e); err != nil {
			_ = enc.Close()
			return fmt.Errorf("failed to encode event %d: %w", e.Sequence, err)
		}
	}
	return enc.Close()
}

// ReadBundle decodes a stream written by WriteBundle.
func ReadBundle(r io.Reader) ([]events.Event, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []events.Event
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e events.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("bundle line %d: %w", line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Manifest indexes one archived run.
type Manifest struct {
	RunID      string `json:"run_id"`
	Events     int    `json:"events"`
	BundleHash string `json:"bundle_hash"`
	HeadHash   string `json:"head_hash"`

	// Hash is the content key of the manifest itself; not serialised.
	Hash string `json:"-"`
}

// Archive stores the bundle of evs, then its canonical manifest.
func Archive(ctx context.Context, store Store, runID string, evs []events.Event) (Manifest, error) {
	var buf bytes.Buffer
	if err := WriteBundle(&buf, evs); err != nil {
		return Manifest{}, fmt.Errorf("failed to build bundle: %w", err)
	}
	bundleKey, err := store.Store(ctx, buf.Bytes())
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to store bundle: %w", err)
	}

	m := Manifest{
		RunID:      runID,
		Events:     len(evs),
		BundleHash: bundleKey,
	}
	if len(evs) > 0 {
		m.HeadHash = evs[len(evs)-1].Hash
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return Manifest{}, err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to canonicalize manifest: %w", err)
	}
	if m.Hash, err = store.Store(ctx, canonical); err != nil {
		return Manifest{}, fmt.Errorf("failed to store manifest: %w", err)
	}
	return m, nil
}

// Load fetches a manifest and its bundle and checks both against each other
// and the event hash chain.
func Load(ctx context.Context, store Store, manifestKey string) (Manifest, []events.Event, error) {
	raw, err := store.Get(ctx, manifestKey)
	if err != nil {
		return Manifest{}, nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	m.Hash = manifestKey

	bundle, err := store.Get(ctx, m.BundleHash)
	if err != nil {
		return Manifest{}, nil, err
	}
	evs, err := ReadBundle(bytes.NewReader(bundle))
	if err != nil {
		return Manifest{}, nil, err
	}

	if len(evs) != m.Events {
		return Manifest{}, nil, fmt.Errorf("%w: %d events, manifest lists %d", ErrManifestMismatch, len(evs), m.Events)
	}
	head := ""
	if len(evs) > 0 {
		head = evs[len(evs)-1].Hash
	}
	if head != m.HeadHash {
		return Manifest{}, nil, fmt.Errorf("%w: head %s, manifest lists %s", ErrManifestMismatch, head, m.HeadHash)
	}
	if err := events.VerifyChain(evs); err != nil {
		return Manifest{}, nil, err
	}
	return m, evs, nil
}
