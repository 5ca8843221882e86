package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const tempDirName = ".tmp"

// refRe matches the 16-random-byte hex references newRef produces. Anything
// else is rejected before it can touch a path.
var refRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// LocalStore keeps one directory per owner under root, with owner-only
// permissions. Staged writes go to a shared temp directory and are renamed
// into place on commit, so a blob is either fully present or absent.
type LocalStore struct {
	root string
	tmp  string
}

func NewLocalStore(root string) (*LocalStore, error) {
	root = filepath.Clean(root)

	err := os.MkdirAll(root, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	tmp := filepath.Join(root, tempDirName)
	err = os.MkdirAll(tmp, 0o700)
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	return &LocalStore{root: root, tmp: tmp}, nil
}

// newRef generates a cryptographically random blob reference, fixed-length
// hex, independent of any user input.
func newRef() (string, error) {
	var b [16]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return "", fmt.Errorf("generating blob ref: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

func (s *LocalStore) ownerDir(ownerID string) (string, error) {
	if ownerID == "" || ownerID == tempDirName || ownerID != filepath.Base(ownerID) {
		return "", fmt.Errorf("invalid owner id %q", ownerID)
	}
	return filepath.Join(s.root, ownerID), nil
}

func (s *LocalStore) blobPath(ownerID, ref string) (string, error) {
	dir, err := s.ownerDir(ownerID)
	if err != nil {
		return "", err
	}
	if !refRe.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(dir, ref), nil
}

type stagedBlob struct {
	store   *LocalStore
	ownerID string
	ref     string
	tmpPath string
	size    int64
	done    bool
}

func (s *LocalStore) Stage(ctx context.Context, ownerID string, content io.Reader) (Staged, error) {
	if _, err := s.ownerDir(ownerID); err != nil {
		return nil, err
	}

	ref, err := newRef()
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(s.tmp, "stage-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	written, err := io.Copy(f, content)
	if err == nil {
		err = f.Close()
	} else {
		f.Close()
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("staging blob: %w", err)
	}

	return &stagedBlob{
		store:   s,
		ownerID: ownerID,
		ref:     ref,
		tmpPath: f.Name(),
		size:    written,
	}, nil
}

func (b *stagedBlob) Ref() string { return b.ref }

func (b *stagedBlob) Size() int64 { return b.size }

// Commit moves the staged content into the owner's directory, creating it
// with owner-only permissions on first use. The rename is atomic, so no
// partially written blob ever becomes visible.
func (b *stagedBlob) Commit() error {
	if b.done {
		return errors.New("staged blob already finalized")
	}

	dir, err := b.store.ownerDir(b.ownerID)
	if err != nil {
		return err
	}
	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return fmt.Errorf("creating owner directory: %w", err)
	}

	err = os.Rename(b.tmpPath, filepath.Join(dir, b.ref))
	if err != nil {
		return fmt.Errorf("committing blob: %w", err)
	}

	b.done = true
	return nil
}

// Discard removes the staged file. Safe to call after Commit or repeatedly.
func (b *stagedBlob) Discard() error {
	if b.done {
		return nil
	}
	b.done = true
	os.Remove(b.tmpPath)
	return nil
}

func (s *LocalStore) Open(ownerID, ref string) (io.ReadSeekCloser, error) {
	path, err := s.blobPath(ownerID, ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("opening blob %s: %w", ref, err)
	}
	return f, nil
}

func (s *LocalStore) Remove(ownerID, ref string) error {
	path, err := s.blobPath(ownerID, ref)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("removing blob %s: %w", ref, err)
	}
	return nil
}

func (s *LocalStore) Refs(ownerID string) ([]RefInfo, error) {
	dir, err := s.ownerDir(ownerID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing blobs for %s: %w", ownerID, err)
	}

	var refs []RefInfo
	for _, e := range entries {
		if e.IsDir() || !refRe.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		refs = append(refs, RefInfo{Ref: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return refs, nil
}

func (s *LocalStore) Owners() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing owner directories: %w", err)
	}

	var owners []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != tempDirName {
			owners = append(owners, e.Name())
		}
	}
	return owners, nil
}

func (s *LocalStore) RemoveOwner(ownerID string) error {
	dir, err := s.ownerDir(ownerID)
	if err != nil {
		return err
	}
	err = os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("removing owner directory %s: %w", ownerID, err)
	}
	return nil
}

func (s *LocalStore) SweepStaged(olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(s.tmp)
	if err != nil {
		return 0, fmt.Errorf("listing staging directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(olderThan) {
			if os.Remove(filepath.Join(s.tmp, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
