package detect

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/filesync/internal/objstore"
)

// Classification is the outcome of comparing an artifact to the archive.
type Classification int

const (
	New Classification = iota
	Unchanged
	Modified
)

func (c Classification) String() string {
	switch c {
	case New:
		return "new"
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// Artifact is one fetched file waiting for classification.
type Artifact struct {
	Name string // name as listed by the source
	Path string // local file holding the payload
}

// Result records what happened to one artifact.
type Result struct {
	Artifact       Artifact
	Classification Classification

	// VersionedName is set only for Modified artifacts. Artifact.Path is
	// stale once it is set: the local file now lives under this name.
	VersionedName string

	// UploadedKey is the store key written, empty when nothing was written.
	UploadedKey string

	ProcessedAt time.Time
}

// Index is the set of artifact names already archived under one prefix.
// Build it once per run.
type Index map[string]struct{}

// BuildIndex lists every archived name under prefix.
func BuildIndex(ctx context.Context, store objstore.Store, prefix string) (Index, error) {
	names, err := objstore.Names(ctx, store, prefix)
	if err != nil {
		return nil, fmt.Errorf("build archive index for %q: %w", prefix, err)
	}
	idx := make(Index, len(names))
	for _, n := range names {
		idx[n] = struct{}{}
	}
	return idx, nil
}

// Contains reports whether name is archived.
func (ix Index) Contains(name string) bool {
	_, ok := ix[name]
	return ok
}

// DefaultBinarySuffixes are the name suffixes compared byte-for-byte.
var DefaultBinarySuffixes = []string{".pdf"}

// Options configures a Detector.
type Options struct {
	// Prefix is the archive key prefix of the artifact class.
	Prefix string

	// ScratchDir receives temporary copies of archived binaries.
	// Defaults to os.TempDir().
	ScratchDir string

	// BinarySuffixes are matched case-insensitively against the artifact
	// name. Nil means DefaultBinarySuffixes.
	BinarySuffixes []string

	Logger *slog.Logger
}

// Detector classifies artifacts of one class and performs the resulting
// uploads and renames.
type Detector struct {
	store  objstore.Store
	opts   Options
	logger *slog.Logger
}

// New creates a Detector over store.
func New(store objstore.Store, opts Options) *Detector {
	if opts.BinarySuffixes == nil {
		opts.BinarySuffixes = DefaultBinarySuffixes
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: store, opts: opts, logger: logger}
}

// Classify compares art against the archive and applies the side effects of
// the classification. at is the processing time used for versioned names.
//
// Store failures abort classification; the returned error wraps the
// objstore.StoreError.
func (d *Detector) Classify(ctx context.Context, art Artifact, index Index, at time.Time) (Result, error) {
	res := Result{Artifact: art, ProcessedAt: at}
	key := objstore.Key(d.opts.Prefix, art.Name)

	if !index.Contains(art.Name) {
		body, err := os.ReadFile(art.Path)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", art.Path, err)
		}
		if err := d.store.Put(ctx, key, body); err != nil {
			return res, fmt.Errorf("upload new %s: %w", art.Name, err)
		}
		res.Classification = New
		res.UploadedKey = key
		d.logger.Debug("artifact classified", "file", art.Name, "classification", res.Classification)
		return res, nil
	}

	archived, err := d.store.Get(ctx, key)
	if err != nil {
		return res, fmt.Errorf("fetch archived %s: %w", art.Name, err)
	}

	var same bool
	if d.isBinary(art.Name) {
		same, err = d.sameBinary(art, archived)
	} else {
		same, err = sameLetters(art.Path, archived)
	}
	if err != nil {
		return res, fmt.Errorf("compare %s: %w", art.Name, err)
	}

	if same {
		res.Classification = Unchanged
		d.logger.Debug("artifact classified", "file", art.Name, "classification", res.Classification)
		return res, nil
	}

	versioned := VersionedName(art.Name, at)
	renamed := filepath.Join(filepath.Dir(art.Path), versioned)
	if _, err := os.Stat(renamed); err == nil || index.Contains(versioned) {
		d.logger.Warn("versioned name already in use, replacing previous copy",
			"file", art.Name, "versioned", versioned)
	}
	if err := os.Rename(art.Path, renamed); err != nil {
		return res, fmt.Errorf("rename %s: %w", art.Name, err)
	}
	body, err := os.ReadFile(renamed)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", renamed, err)
	}
	versionedKey := objstore.Key(d.opts.Prefix, versioned)
	if err := d.store.Put(ctx, versionedKey, body); err != nil {
		return res, fmt.Errorf("upload modified %s: %w", versioned, err)
	}

	res.Classification = Modified
	res.VersionedName = versioned
	res.UploadedKey = versionedKey
	d.logger.Debug("artifact classified",
		"file", art.Name,
		"classification", res.Classification,
		"versioned", versioned,
	)
	return res, nil
}

func (d *Detector) isBinary(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range d.opts.BinarySuffixes {
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// sameBinary writes the archived copy to the scratch directory and compares
// the two files. The scratch copy is always removed.
func (d *Detector) sameBinary(art Artifact, archived []byte) (bool, error) {
	if err := os.MkdirAll(d.opts.ScratchDir, 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(d.opts.ScratchDir, "archived-*"+filepath.Ext(art.Name))
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(archived); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}

	return sameFiles(art.Path, tmp.Name())
}

func sameFiles(a, b string) (bool, error) {
	ab, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	bb, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

// sameLetters compares the letters of the local file (trailing whitespace
// trimmed) with those of the archived copy.
func sameLetters(path string, archived []byte) (bool, error) {
	if !utf8.Valid(archived) {
		return false, fmt.Errorf("archived copy is not valid UTF-8")
	}
	local, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	localText := strings.TrimRightFunc(string(local), unicode.IsSpace)
	return Letters(localText) == Letters(string(archived)), nil
}

// Letters keeps only the Unicode letters of s, in order.
func Letters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// VersionedName is the dated name a Modified artifact is archived under:
// the run date as YYYYMMDD, a hyphen, and the part of name after its last
// hyphen (all of name when it has none).
func VersionedName(name string, at time.Time) string {
	suffix := name
	if i := strings.LastIndex(name, "-"); i >= 0 {
		suffix = name[i+1:]
	}
	return at.Format("20060102") + "-" + suffix
}
