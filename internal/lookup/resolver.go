// Package lookup mirrors the config service's lookup table locally and
// resolves lookup ids (membership categories, grades, work locations) to names.
package lookup

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"portal-service/internal/common/database"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cachePrefix = "lookup:name:"

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// LooksLikeID reports whether v is a lookup id rather than a literal name.
// Ids are 24-hex object ids from the config service or UUIDs.
func LooksLikeID(v string) bool {
	if objectIDPattern.MatchString(v) {
		return true
	}
	_, err := uuid.Parse(v)
	return err == nil
}

// Resolver turns lookup ids into display names.
type Resolver interface {
	ResolveName(ctx context.Context, idOrName string) string
}

type Service struct {
	db     *database.PostgresClient
	cache  *database.RedisClient
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

var _ Resolver = (*Service)(nil)

func NewService(db *database.PostgresClient, cache *database.RedisClient, ttl time.Duration, log logger.Logger) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "lookup"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ResolveName returns the lookup name for an id. Literal names, unknown ids
// and lookup failures return the input unchanged.
func (s *Service) ResolveName(ctx context.Context, idOrName string) string {
	v := strings.TrimSpace(idOrName)
	if v == "" || !LooksLikeID(v) {
		return v
	}

	if s.cache != nil {
		name, err := s.cache.Get(ctx, cachePrefix+v)
		if err == nil {
			return name
		}
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("lookup cache read failed", map[string]interface{}{"id": v, "error": err.Error()})
		}
	}

	l, err := s.Get(ctx, v)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRecordNotFound) {
			s.logger.Warn("lookup resolve failed", map[string]interface{}{"id": v, "error": err.Error()})
		}
		return v
	}

	name := l.Name
	if s.cache != nil {
		if err := s.cache.Set(ctx, cachePrefix+v, name, s.ttl); err != nil {
			s.logger.Warn("lookup cache write failed", map[string]interface{}{"id": v, "error": err.Error()})
		}
	}
	return name
}

func (s *Service) Get(ctx context.Context, id string) (*models.Lookup, error) {
	var (
		l                          models.Lookup
		code, display, lookupType sql.NullString
	)
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT id, code, lookupname, display_name, lookup_type_id, is_active, is_deleted, updated_at
		FROM lookups WHERE id = $1 AND NOT is_deleted`, id).
		Scan(&l.ID, &code, &l.Name, &display, &lookupType, &l.IsActive, &l.IsDeleted, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError("Lookup", id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("get lookup", err)
	}
	l.Code = code.String
	l.DisplayName = display.String
	l.LookupTypeID = lookupType.String
	return &l, nil
}

// Upsert writes the lookup and drops its cached name.
func (s *Service) Upsert(ctx context.Context, l models.Lookup) error {
	if l.ID == "" || l.Name == "" {
		return apperrors.NewValidationError("lookup id and lookupname are required")
	}
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO lookups (id, code, lookupname, display_name, lookup_type_id, is_active, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			lookupname = EXCLUDED.lookupname,
			display_name = EXCLUDED.display_name,
			lookup_type_id = EXCLUDED.lookup_type_id,
			is_active = EXCLUDED.is_active,
			is_deleted = EXCLUDED.is_deleted,
			updated_at = EXCLUDED.updated_at`,
		l.ID, l.Code, l.Name, l.DisplayName, l.LookupTypeID, l.IsActive, l.IsDeleted, s.now())
	if err != nil {
		return apperrors.NewDatabaseWriteError("upsert lookup", err)
	}
	s.invalidate(ctx, l.ID)
	return nil
}

// Delete removes the lookup. Deleting an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.db.DB.ExecContext(ctx, `DELETE FROM lookups WHERE id = $1`, id); err != nil {
		return apperrors.NewDatabaseWriteError("delete lookup", err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cachePrefix+id); err != nil {
		s.logger.Warn("lookup cache invalidation failed", map[string]interface{}{"id": id, "error": err.Error()})
	}
}

// Static resolves from a fixed map. Used in tests and when no database is
// configured.
type Static map[string]string

func (m Static) ResolveName(_ context.Context, idOrName string) string {
	if name, ok := m[idOrName]; ok {
		return name
	}
	return idOrName
}
