// Package repository commits finalized sessions to durable storage: the image
// goes to the file store under the session id and the metadata to one index
// record in the KV store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/fieldcapture/constants"
	"github.com/joseph-ayodele/fieldcapture/internal/common"
	"github.com/joseph-ayodele/fieldcapture/internal/dedup"
	"github.com/joseph-ayodele/fieldcapture/internal/entity"
	"github.com/joseph-ayodele/fieldcapture/internal/store"
)

// SessionRepository stores sessions as one index collection plus image files.
type SessionRepository struct {
	kv        store.KV
	files     store.FileStore
	imagesDir string
	schema    *jsonschema.Schema
	logger    *slog.Logger

	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

// NewSessionRepository creates the images directory and compiles the index schema.
func NewSessionRepository(kv store.KV, files store.FileStore, imagesDir string, logger *slog.Logger) (*SessionRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileIndexSchema()
	if err != nil {
		return nil, err
	}
	if err := files.EnsureDir(imagesDir); err != nil {
		return nil, err
	}
	return &SessionRepository{
		kv:        kv,
		files:     files,
		imagesDir: imagesDir,
		schema:    schema,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Commit persists snap. With an empty existingID a new session is created and
// the image copied under its id; otherwise the stored session is overwritten
// in place keeping its id and createdAt. Either the whole commit lands or the
// index is left untouched.
func (r *SessionRepository) Commit(ctx context.Context, snap entity.Snapshot, existingID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return "", err
	}
	if existingID == "" {
		return r.create(ctx, sessions, snap)
	}
	return r.update(ctx, sessions, snap, existingID)
}

func (r *SessionRepository) create(ctx context.Context, sessions []*entity.Session, snap entity.Snapshot) (string, error) {
	id := r.newID()
	now := r.now().UTC()

	var imagePath string
	if snap.ImageURI != "" {
		imagePath = r.imagePath(id, snap.ImageURI)
		if err := r.files.Copy(snap.ImageURI, imagePath); err != nil {
			r.logger.Error("failed to copy session image", "session_id", id, "src", snap.ImageURI, "error", err)
			return "", err
		}
	}

	rec := &entity.Session{
		ID:              id,
		ImageURI:        imagePath,
		DetectedEntries: entity.CloneCandidates(snap.DetectedEntries),
		AcceptedValues:  dedup.UniqueAccepted(snap.AcceptedValues),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.write(ctx, append([]*entity.Session{rec}, sessions...)); err != nil {
		if imagePath != "" {
			if derr := r.files.Delete(imagePath); derr != nil {
				r.logger.Warn("failed to remove copied image", "path", imagePath, "error", derr)
			}
		}
		return "", err
	}

	r.logger.Info("session created", "session_id", id, "accepted", len(rec.AcceptedValues), "detected", len(rec.DetectedEntries))
	return id, nil
}

func (r *SessionRepository) update(ctx context.Context, sessions []*entity.Session, snap entity.Snapshot, id string) (string, error) {
	pos := slices.IndexFunc(sessions, func(s *entity.Session) bool { return s.ID == id })
	if pos < 0 {
		return "", common.NewAppError("NOT_FOUND", fmt.Sprintf("session %s", id), common.ErrNotFound)
	}
	prev := sessions[pos]
	now := r.now().UTC()

	// a replacement image gets a fresh name so the previous file stays valid
	// until the index points away from it
	imagePath := prev.ImageURI
	replaced := snap.ImageURI != "" && snap.ImageURI != prev.ImageURI
	if replaced {
		imagePath = r.revisionPath(id, snap.ImageURI, now)
		if err := r.files.Copy(snap.ImageURI, imagePath); err != nil {
			r.logger.Error("failed to copy session image", "session_id", id, "src", snap.ImageURI, "error", err)
			return "", err
		}
	}

	rec := &entity.Session{
		ID:              id,
		ImageURI:        imagePath,
		DetectedEntries: entity.CloneCandidates(snap.DetectedEntries),
		AcceptedValues:  dedup.UniqueAccepted(snap.AcceptedValues),
		CreatedAt:       prev.CreatedAt,
		UpdatedAt:       now,
	}
	rest := slices.Delete(slices.Clone(sessions), pos, pos+1)
	if err := r.write(ctx, append([]*entity.Session{rec}, rest...)); err != nil {
		if replaced {
			if derr := r.files.Delete(imagePath); derr != nil {
				r.logger.Warn("failed to remove copied image", "path", imagePath, "error", derr)
			}
		}
		return "", err
	}

	if replaced && prev.ImageURI != "" {
		if err := r.files.Delete(prev.ImageURI); err != nil {
			r.logger.Warn("failed to remove previous image", "path", prev.ImageURI, "error", err)
		}
	}

	r.logger.Info("session updated", "session_id", id, "accepted", len(rec.AcceptedValues), "detected", len(rec.DetectedEntries))
	return id, nil
}

// Get returns the stored session with id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("session %s", id), common.ErrNotFound)
}

// List returns all sessions, most recently saved first.
func (r *SessionRepository) List(ctx context.Context) ([]*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sessions, func(a, b *entity.Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return sessions, nil
}

// Delete removes the session record and its image. Unknown ids are not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, err := r.load(ctx)
	if err != nil {
		return err
	}
	pos := slices.IndexFunc(sessions, func(s *entity.Session) bool { return s.ID == id })
	if pos < 0 {
		r.logger.Debug("delete of unknown session ignored", "session_id", id)
		return nil
	}
	imagePath := sessions[pos].ImageURI
	if err := r.write(ctx, slices.Delete(sessions, pos, pos+1)); err != nil {
		return err
	}
	if imagePath != "" {
		if err := r.files.Delete(imagePath); err != nil {
			r.logger.Warn("failed to remove session image", "session_id", id, "path", imagePath, "error", err)
		}
	}
	r.logger.Info("session deleted", "session_id", id)
	return nil
}

func (r *SessionRepository) load(ctx context.Context) ([]*entity.Session, error) {
	raw, found, err := r.kv.Get(ctx, IndexKey)
	if err != nil {
		r.logger.Error("failed to read session index", "error", err)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	sessions, err := decodeIndex(r.schema, raw)
	if err != nil {
		r.logger.Error("session index rejected", "error", err)
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) write(ctx context.Context, sessions []*entity.Session) error {
	b, err := encodeIndex(sessions)
	if err != nil {
		return err
	}
	if err := r.kv.Set(ctx, IndexKey, b); err != nil {
		r.logger.Error("failed to write session index", "error", err)
		if errors.Is(err, common.ErrStore) {
			return err
		}
		return fmt.Errorf("%w: %v", common.ErrStore, err)
	}
	return nil
}

// revisionPath names a replacement image <id>-<unixnano>.<ext>.
func (r *SessionRepository) revisionPath(id, src string, at time.Time) string {
	return r.imagePath(fmt.Sprintf("%s-%d", id, at.UnixNano()), src)
}

func (r *SessionRepository) imagePath(id, src string) string {
	ext := constants.NormalizeExt(filepath.Ext(src))
	if ext == "" {
		return filepath.Join(r.imagesDir, id)
	}
	return filepath.Join(r.imagesDir, id+"."+ext)
}
