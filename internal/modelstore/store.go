// Package modelstore persists trained artifact sets and their metadata on
// disk. Each training run writes a fresh set directory; a CURRENT pointer
// file names the live set and is replaced atomically, so a reader always
// sees one complete set or none.
package modelstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/moodtrack/internal/analytics"
	"github.com/kalambet/moodtrack/internal/features"
	"github.com/kalambet/moodtrack/internal/ml"
)

// formatVersion is bumped whenever an encoded artifact layout changes.
// Files with any other version load as absent.
const formatVersion = 1

const (
	setsDir     = "sets"
	currentFile = "CURRENT"
	metaFile    = "meta.json"

	scalerFile = "scaler.gob"
	kmeansFile = "kmeans.gob"
	forestFile = "forest.gob"
)

// DefaultPruneGrace is how long a superseded set stays on disk for
// readers that resolved it before the swap.
const DefaultPruneGrace = time.Minute

// maxLoadAttempts bounds how often Load re-resolves CURRENT after a set
// vanished underneath it.
const maxLoadAttempts = 3

// ErrIncompatible marks artifacts written with another format version or
// feature layout.
var ErrIncompatible = errors.New("incompatible artifact")

// Metadata describes the most recent training run.
type Metadata struct {
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
	SetID     string                 `json:"set_id,omitempty"`
	K         int                    `json:"k,omitempty"`
	Features  []string               `json:"features,omitempty"`
	Corr      analytics.Correlations `json:"corr,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// NoData is the metadata written when retraining finds no records.
func NoData() Metadata {
	return Metadata{Message: "no data"}
}

// Store reads and writes artifact sets under a single directory.
type Store struct {
	dir string
	mu  sync.Mutex // serialises writers; readers rely on the atomic pointer swap

	// PruneGrace is the minimum age a successor set must reach before the
	// set it replaced is deleted.
	PruneGrace time.Duration
	now        func() time.Time
}

// Open returns a Store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, setsDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating model directory: %w", err)
	}
	return &Store{dir: dir, PruneGrace: DefaultPruneGrace, now: time.Now}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

type envelope[T any] struct {
	Version  int
	Features []string
	Model    T
}

// Save writes set and its metadata under a new identifier and makes it
// current with a single pointer swap, so artifacts and metadata change
// together. meta.SetID is filled in. The set that was current before stays
// on disk; older sets are removed once their successor is PruneGrace old.
func (s *Store) Save(set ml.ArtifactSet, meta Metadata) (string, error) {
	if !set.Complete() {
		return "", errors.New("saving incomplete artifact set")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	dir := filepath.Join(s.dir, setsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating set directory: %w", err)
	}

	if err := writeGob(filepath.Join(dir, scalerFile), set.Scaler); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if err := writeGob(filepath.Join(dir, kmeansFile), set.Clusters); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	if err := writeGob(filepath.Join(dir, forestFile), set.Regressor); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	meta.SetID = id
	if err := writeMeta(filepath.Join(dir, metaFile), meta); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	previous := s.currentID()
	if err := writeFileAtomic(filepath.Join(s.dir, currentFile), []byte(id+"\n")); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("swapping current set: %w", err)
	}

	s.prune(id, previous)
	return id, nil
}

// Load resolves the current set. Any failure (no pointer, missing or
// corrupt files, incompatible format) yields ml.Untrained. A read that
// fails because CURRENT moved on in the meantime is retried against the
// new set.
func (s *Store) Load() ml.Artifacts {
	id := s.currentID()
	for attempt := 1; ; attempt++ {
		if id == "" {
			return ml.Untrained{Reason: "no trained model"}
		}
		set, err := s.readSet(id)
		if err == nil {
			return ml.Resolve(id, set)
		}
		next := s.currentID()
		if next == id || attempt == maxLoadAttempts {
			return untrained(id, err)
		}
		slog.Debug("model set replaced during load, retrying", "set", id, "current", next)
		id = next
	}
}

func (s *Store) readSet(id string) (ml.ArtifactSet, error) {
	dir := filepath.Join(s.dir, setsDir, id)
	var set ml.ArtifactSet
	var err error
	if set.Scaler, err = readGob[*ml.StandardScaler](filepath.Join(dir, scalerFile)); err != nil {
		return ml.ArtifactSet{}, err
	}
	if set.Clusters, err = readGob[*ml.KMeans](filepath.Join(dir, kmeansFile)); err != nil {
		return ml.ArtifactSet{}, err
	}
	if set.Regressor, err = readGob[*ml.Forest](filepath.Join(dir, forestFile)); err != nil {
		return ml.ArtifactSet{}, err
	}
	return set, nil
}

func untrained(id string, err error) ml.Artifacts {
	slog.Warn("model artifacts unavailable", "set", id, "error", err)
	return ml.Untrained{Reason: err.Error()}
}

// Clear drops the current pointer so subsequent loads report no model.
// Set directories are left for pruning by a later Save.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.dir, currentFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing current set: %w", err)
	}
	return nil
}

// SaveMeta replaces the store-level metadata record, which describes runs
// that produced no set (see NoData). It is shadowed by the current set's
// own metadata while a set is current.
func (s *Store) SaveMeta(m Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeMeta(filepath.Join(s.dir, metaFile), m)
}

// LoadMeta returns the current set's metadata, or the store-level record
// when no set is current. A missing record returns ok=false.
func (s *Store) LoadMeta() (Metadata, bool, error) {
	id := s.currentID()
	for attempt := 1; id != "" && attempt <= maxLoadAttempts; attempt++ {
		m, ok, err := readMeta(filepath.Join(s.dir, setsDir, id, metaFile))
		if err == nil && ok {
			return m, true, nil
		}
		next := s.currentID()
		if next == id {
			if err != nil {
				return Metadata{}, false, err
			}
			break
		}
		id = next
	}
	return readMeta(filepath.Join(s.dir, metaFile))
}

func writeMeta(path string, m Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return writeFileAtomic(path, data)
}

func readMeta(path string) (Metadata, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("reading metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, false, fmt.Errorf("decoding metadata: %w", err)
	}
	return m, true, nil
}

func (s *Store) currentID() string {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		return ""
	}
	id := strings.TrimSpace(string(data))
	if uuid.Validate(id) != nil {
		return ""
	}
	return id
}

type setDir struct {
	name    string
	written time.Time
}

// prune removes set directories other than keep whose successor (the next
// set written after them) is older than PruneGrace. A reader can only have
// resolved a set before its successor was swapped in.
func (s *Store) prune(keep ...string) {
	entries, err := os.ReadDir(filepath.Join(s.dir, setsDir))
	if err != nil {
		return
	}
	var sets []setDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sets = append(sets, setDir{name: e.Name(), written: info.ModTime()})
	}
	sort.SliceStable(sets, func(i, j int) bool { return sets[i].written.Before(sets[j].written) })

	cutoff := s.now().Add(-s.PruneGrace)
	for i := 0; i < len(sets)-1; i++ {
		if slices.Contains(keep, sets[i].name) || sets[i+1].written.After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, setsDir, sets[i].name)); err != nil {
			slog.Warn("pruning model set", "set", sets[i].name, "error", err)
		}
	}
}

func writeGob[T any](path string, model T) error {
	var buf bytes.Buffer
	env := envelope[T]{Version: formatVersion, Features: features.Names(), Model: model}
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

func readGob[T any](path string) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	var env envelope[T]
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return zero, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if env.Version != formatVersion {
		return zero, fmt.Errorf("%w: %s has format version %d", ErrIncompatible, filepath.Base(path), env.Version)
	}
	if !slices.Equal(env.Features, features.Names()) {
		return zero, fmt.Errorf("%w: %s was trained on features %v", ErrIncompatible, filepath.Base(path), env.Features)
	}
	return env.Model, nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
