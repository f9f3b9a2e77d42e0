package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/padak/ceo-xmass-review/internal/blobstore"
	"github.com/padak/ceo-xmass-review/internal/logger"
)

// AnonymousIdentity is the sentinel for respondents without a verified
// identity. It is not unique: every anonymous submission gets its own
// storage key.
const AnonymousIdentity = "anonymous"

// anonymousKeyPrefix marks storage keys of anonymous records.
const anonymousKeyPrefix = "anonymous_"

// ErrNoRecord is returned when a respondent has no stored submission.
var ErrNoRecord = errors.New("no answer record")

// IsAnonymousIdentity reports whether identity is absent or the sentinel.
func IsAnonymousIdentity(identity string) bool {
	return identity == "" || identity == AnonymousIdentity
}

// KeyForIdentity derives the storage key for an identified respondent,
// e.g. petr@example.com -> petr_example.com.json.
func KeyForIdentity(identity string) string {
	return strings.ReplaceAll(identity, "@", "_") + ".json"
}

// IsAnonymousKey recognizes storage keys of anonymous records.
func IsAnonymousKey(name string) bool {
	return strings.HasPrefix(name, anonymousKeyPrefix)
}

// SafeFileName flattens an identity into a filesystem-friendly name.
func SafeFileName(identity string) string {
	return strings.ReplaceAll(identity, "@", "_")
}

// Saved reports the outcome of a save.
type Saved struct {
	Key         string
	SubmittedAt time.Time
	LastUpdated time.Time
	// Fallback is true when the record went to the local fallback
	// directory instead of the blob backend.
	Fallback bool
}

// AnswerService persists answer records as tagged blobs. One tag is the
// questionnaire tag; identified records additionally carry the identity
// as a tag, which is how a respondent's own record is found again.
type AnswerService struct {
	backend  blobstore.Backend // nil means unconfigured
	tag      string
	qid      string
	qversion string
	dataDir  string
	log      *logger.Logger

	now    func() time.Time
	newKey func() string
}

// NewAnswerService builds the store for one questionnaire version. A nil
// backend is allowed: every write then lands in the local fallback
// directory and every read reports no prior submission.
func NewAnswerService(backend blobstore.Backend, tag, questionnaireID, questionnaireVersion, dataDir string, log *logger.Logger) *AnswerService {
	return &AnswerService{
		backend:  backend,
		tag:      tag,
		qid:      questionnaireID,
		qversion: questionnaireVersion,
		dataDir:  dataDir,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newKey:   anonymousKey,
	}
}

func anonymousKey() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return anonymousKeyPrefix + suffix + ".json"
}

// Tag returns the questionnaire tag the service operates under.
func (s *AnswerService) Tag() string { return s.tag }

// findBlobs lists all blobs for the questionnaire tag whose tag set also
// contains identity. A linear scan over the tag listing: O(respondents),
// acceptable at the scale this tool targets.
func (s *AnswerService) findBlobs(ctx context.Context, identity string) ([]blobstore.Blob, error) {
	blobs, err := s.backend.List(ctx, s.tag)
	if err != nil {
		return nil, fmt.Errorf("list blobs for tag %q: %w", s.tag, err)
	}
	var out []blobstore.Blob
	for _, b := range blobs {
		if b.HasTag(identity) {
			out = append(out, b)
		}
	}
	return out, nil
}

// LoadOne fetches the record of one identified respondent, or ErrNoRecord.
func (s *AnswerService) LoadOne(ctx context.Context, identity string) (*AnswerRecord, error) {
	if s.backend == nil || IsAnonymousIdentity(identity) {
		return nil, ErrNoRecord
	}
	blobs, err := s.findBlobs(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, ErrNoRecord
	}
	data, err := s.backend.Download(ctx, blobs[0].ID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("download record for %s: %w", identity, err)
	}
	var rec AnswerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record for %s: %w", identity, err)
	}
	rec.StorageKey = blobs[0].Name
	return &rec, nil
}

// SaveOne persists a submission. Identified saves supersede the previous
// record: its submitted_at is preserved, the old blob is deleted and a
// fresh one uploaded. The delete-then-upload pair is not transactional;
// a crash in between loses the record. Anonymous saves never supersede,
// each gets its own key.
func (s *AnswerService) SaveOne(ctx context.Context, identity string, answers map[string]any, identify bool) (*Saved, error) {
	now := s.now()
	rec := AnswerRecord{
		Identity:             identity,
		QuestionnaireID:      s.qid,
		QuestionnaireVersion: s.qversion,
		SubmittedAt:          now,
		LastUpdated:          now,
		Answers:              answers,
	}

	identify = identify && !IsAnonymousIdentity(identity)
	var key string
	var tags []string
	if identify {
		key = KeyForIdentity(identity)
		tags = []string{s.tag, identity}
		if s.backend != nil {
			if prev, err := s.LoadOne(ctx, identity); err == nil {
				rec.SubmittedAt = prev.SubmittedAt
			}
			if n, err := s.DeleteOne(ctx, identity); err != nil {
				s.log.Warn("could not delete superseded record", "identity", identity, "err", err)
			} else if n > 0 {
				s.log.Info("superseding previous record", "identity", identity, "deleted", n)
			}
		}
	} else {
		rec.Identity = AnonymousIdentity
		key = s.newKey()
		tags = []string{s.tag}
	}

	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize record: %w", err)
	}

	if s.backend == nil {
		if err := s.writeFallback(key, data); err != nil {
			return nil, err
		}
		return &Saved{Key: key, SubmittedAt: rec.SubmittedAt, LastUpdated: rec.LastUpdated, Fallback: true}, nil
	}
	if _, err := s.backend.Upload(ctx, key, tags, data); err != nil {
		s.log.Error("upload failed, writing local fallback", "key", key, "err", err)
		if ferr := s.writeFallback(key, data); ferr != nil {
			return nil, ferr
		}
		return &Saved{Key: key, SubmittedAt: rec.SubmittedAt, LastUpdated: rec.LastUpdated, Fallback: true}, nil
	}
	s.log.Info("answers saved", "key", key, "tag", s.tag, "identified", identify)
	return &Saved{Key: key, SubmittedAt: rec.SubmittedAt, LastUpdated: rec.LastUpdated}, nil
}

// writeFallback stores the record under <dataDir>/out/files. Fallback
// records are write-only: listing and aggregation never read them back.
func (s *AnswerService) writeFallback(key string, data []byte) error {
	dir := filepath.Join(s.dataDir, "out", "files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fallback dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fallback file %s: %w", path, err)
	}
	s.log.Warn("answers written to local fallback", "path", path)
	return nil
}

// LoadAll fetches every record for the questionnaire tag. A blob that
// fails to download or parse is logged and skipped so one bad record
// never takes the dashboard down. Downloads run serially.
func (s *AnswerService) LoadAll(ctx context.Context) ([]*AnswerRecord, error) {
	if s.backend == nil {
		return nil, nil
	}
	blobs, err := s.backend.List(ctx, s.tag)
	if err != nil {
		return nil, fmt.Errorf("list blobs for tag %q: %w", s.tag, err)
	}
	out := make([]*AnswerRecord, 0, len(blobs))
	for _, b := range blobs {
		data, err := s.backend.Download(ctx, b.ID)
		if err != nil {
			s.log.Warn("skipping undownloadable blob", "id", b.ID, "name", b.Name, "err", err)
			continue
		}
		var rec AnswerRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn("skipping unparseable blob", "id", b.ID, "name", b.Name, "err", err)
			continue
		}
		rec.StorageKey = b.Name
		rec.Identity = recoverIdentity(b, rec.Identity)
		out = append(out, &rec)
	}
	return out, nil
}

// recoverIdentity determines the owning identity of a blob: an identity
// tag (contains "@") wins, then the anonymous key pattern, then whatever
// the record body says.
func recoverIdentity(b blobstore.Blob, bodyIdentity string) string {
	for _, t := range b.Tags {
		if strings.Contains(t, "@") {
			return t
		}
	}
	if IsAnonymousKey(b.Name) {
		return AnonymousIdentity
	}
	if bodyIdentity != "" {
		return bodyIdentity
	}
	return AnonymousIdentity
}

// DeleteOne removes every blob tagged with both the questionnaire tag and
// identity, returning how many were deleted.
func (s *AnswerService) DeleteOne(ctx context.Context, identity string) (int, error) {
	if s.backend == nil || IsAnonymousIdentity(identity) {
		return 0, nil
	}
	blobs, err := s.findBlobs(ctx, identity)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, b := range blobs {
		if err := s.backend.Delete(ctx, b.ID); err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("delete blob %s: %w", b.ID, err)
		}
		deleted++
	}
	return deleted, nil
}
