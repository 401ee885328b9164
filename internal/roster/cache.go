package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// Resource families for cache invalidation. Any write that touches a family
// bumps its version, which orphans every cached read for that family; the
// orphans then age out on their TTL.
const (
	familyParticipants = "participants"
	familyWorkers      = "support-workers"
	familyAppointments = "appointments"
	familyRostering    = "rostering"
)

// CachedRepository wraps another Repository with a short-lived Redis read
// cache keyed by operation and filter parameters.
//
// The cache is an optimization only: a Redis failure on the read path falls
// through to the inner repository, while a persistence failure always
// surfaces to the caller.
type CachedRepository struct {
	inner Repository
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedRepository(inner Repository, rdb *redis.Client, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedRepository{inner: inner, rdb: rdb, ttl: ttl}
}

// cachedFetch is the shared read-through path: try the versioned cache key,
// fall back to fetch, then populate the cache best-effort.
func cachedFetch[T any](ctx context.Context, c *CachedRepository, family, key string, fetch func(context.Context) (T, error)) (T, error) {
	fullKey, ok := c.versionedKey(ctx, family, key)
	if ok {
		raw, err := c.rdb.Get(ctx, fullKey).Bytes()
		if err == nil {
			var cached T
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("cache read %s: %v", fullKey, err)
		}
	}

	value, err := fetch(ctx)
	if err != nil {
		return value, err
	}

	if ok {
		if raw, merr := json.Marshal(value); merr == nil {
			if serr := c.rdb.Set(ctx, fullKey, raw, c.ttl).Err(); serr != nil {
				log.Printf("cache write %s: %v", fullKey, serr)
			}
		}
	}
	return value, nil
}

// versionedKey builds the cache key for the family's current version. A
// Redis failure disables caching for this call rather than failing it.
func (c *CachedRepository) versionedKey(ctx context.Context, family, key string) (string, bool) {
	ver, err := c.rdb.Get(ctx, "cachever:"+family).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache version %s: %v", family, err)
			return "", false
		}
		ver = "0"
	}
	return fmt.Sprintf("cache:%s:v%s:%s", family, ver, key), true
}

func (c *CachedRepository) invalidate(ctx context.Context, family string) {
	if err := c.rdb.Incr(ctx, "cachever:"+family).Err(); err != nil {
		log.Printf("cache invalidate %s: %v", family, err)
	}
}

// Reads

func (c *CachedRepository) GetParticipant(ctx context.Context, id uuid.UUID) (*Participant, error) {
	return cachedFetch(ctx, c, familyParticipants, "get:"+id.String(), func(ctx context.Context) (*Participant, error) {
		return c.inner.GetParticipant(ctx, id)
	})
}

func (c *CachedRepository) ListParticipants(ctx context.Context) ([]Participant, error) {
	return cachedFetch(ctx, c, familyParticipants, "list", func(ctx context.Context) ([]Participant, error) {
		return c.inner.ListParticipants(ctx)
	})
}

func (c *CachedRepository) GetWorker(ctx context.Context, id uuid.UUID) (*SupportWorker, error) {
	return cachedFetch(ctx, c, familyWorkers, "get:"+id.String(), func(ctx context.Context) (*SupportWorker, error) {
		return c.inner.GetWorker(ctx, id)
	})
}

func (c *CachedRepository) ListWorkers(ctx context.Context) ([]SupportWorker, error) {
	return cachedFetch(ctx, c, familyWorkers, "list", func(ctx context.Context) ([]SupportWorker, error) {
		return c.inner.ListWorkers(ctx)
	})
}

func (c *CachedRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	return cachedFetch(ctx, c, familyAppointments, "list:"+appointmentFilterKey(f), func(ctx context.Context) ([]Appointment, error) {
		return c.inner.ListAppointments(ctx, f)
	})
}

func (c *CachedRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return cachedFetch(ctx, c, familyAppointments, "get:"+id.String(), func(ctx context.Context) (*Appointment, error) {
		return c.inner.GetAppointment(ctx, id)
	})
}

func (c *CachedRepository) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	return cachedFetch(ctx, c, familyRostering, "list:"+entryFilterKey(f), func(ctx context.Context) ([]Entry, error) {
		return c.inner.ListEntries(ctx, f)
	})
}

func (c *CachedRepository) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return cachedFetch(ctx, c, familyRostering, "get:"+id.String(), func(ctx context.Context) (*Entry, error) {
		return c.inner.GetEntry(ctx, id)
	})
}

// Writes invalidate their resource family only on success; a failed write
// leaves the cache alone because nothing changed.

func (c *CachedRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	created, err := c.inner.CreateAppointment(ctx, a)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, familyAppointments)
	return created, nil
}

func (c *CachedRepository) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	updated, err := c.inner.UpdateAppointment(ctx, a)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, familyAppointments)
	return updated, nil
}

func (c *CachedRepository) PatchAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	patched, err := c.inner.PatchAppointmentStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, familyAppointments)
	return patched, nil
}

func (c *CachedRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if err := c.inner.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, familyAppointments)
	return nil
}

func (c *CachedRepository) CreateEntry(ctx context.Context, e Entry) (*Entry, error) {
	created, err := c.inner.CreateEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, familyRostering)
	return created, nil
}

func (c *CachedRepository) UpdateEntry(ctx context.Context, e Entry) (*Entry, error) {
	updated, err := c.inner.UpdateEntry(ctx, e)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, familyRostering)
	return updated, nil
}

func (c *CachedRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	if err := c.inner.DeleteEntry(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, familyRostering)
	return nil
}

func (c *CachedRepository) ReplaceOccurrences(ctx context.Context, entryID uuid.UUID, occ []Occurrence) error {
	if err := c.inner.ReplaceOccurrences(ctx, entryID, occ); err != nil {
		return err
	}
	c.invalidate(ctx, familyRostering)
	return nil
}

// Key building. Keys must be deterministic for identical filters.

func appointmentFilterKey(f AppointmentFilter) string {
	parts := []string{
		uuidKey(f.WorkerID),
		uuidKey(f.ParticipantID),
		dateKey(f.From),
		dateKey(f.To),
	}
	if f.Status != nil {
		parts = append(parts, string(*f.Status))
	} else {
		parts = append(parts, "-")
	}
	parts = append(parts, fmt.Sprintf("%d:%d", f.Limit, f.Offset))
	return strings.Join(parts, ":")
}

func entryFilterKey(f EntryFilter) string {
	parts := []string{
		uuidKey(f.WorkerID),
		dateKey(f.From),
		dateKey(f.To),
	}
	if f.Status != nil {
		parts = append(parts, string(*f.Status))
	} else {
		parts = append(parts, "-")
	}
	parts = append(parts, fmt.Sprintf("%d:%d", f.Limit, f.Offset))
	return strings.Join(parts, ":")
}

func uuidKey(id *uuid.UUID) string {
	if id == nil {
		return "-"
	}
	return id.String()
}

func dateKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeutil.DateLayout)
}
