package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"portal-service/internal/common/database"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Postgres implements Records on database/sql with JSONB columns.
type Postgres struct {
	client *database.PostgresClient
	logger logger.Logger
	now    func() time.Time
}

var _ Records = (*Postgres)(nil)

func NewPostgres(client *database.PostgresClient, log logger.Logger) *Postgres {
	return &Postgres{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "store"}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ==========================
// Column lists and scanners
// ==========================

const personalColumns = `id, application_id, user_id, personal_info, contact_info, status, approval_details, meta, deleted, version, created_at, updated_at`

const professionalColumns = `id, application_id, user_id, details, meta, deleted, created_at, updated_at`

const subscriptionColumns = `id, application_id, user_id, details, payment_details, membership_number, subscription_attributes, meta, deleted, created_at, updated_at`

func scanPersonal(row rowScanner) (*models.PersonalRecord, error) {
	var (
		p                             models.PersonalRecord
		userID                        sql.NullString
		info, contact, approval, meta []byte
		deleted                       bool
	)
	if err := row.Scan(&p.ID, &p.ApplicationID, &userID, &info, &contact, &p.Status,
		&approval, &meta, &deleted, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UserID = userID.String
	if err := decodeAll(
		field{info, &p.PersonalInfo},
		field{contact, &p.ContactInfo},
		field{approval, &p.ApprovalDetails},
		field{meta, &p.Meta},
	); err != nil {
		return nil, err
	}
	p.Meta.Deleted = deleted
	p.Meta.IsActive = !deleted
	return &p, nil
}

func scanProfessional(row rowScanner) (*models.ProfessionalRecord, error) {
	var (
		p             models.ProfessionalRecord
		userID        sql.NullString
		details, meta []byte
		deleted       bool
	)
	if err := row.Scan(&p.ID, &p.ApplicationID, &userID, &details, &meta, &deleted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UserID = userID.String
	if err := decodeAll(field{details, &p.Details}, field{meta, &p.Meta}); err != nil {
		return nil, err
	}
	p.Meta.Deleted = deleted
	p.Meta.IsActive = !deleted
	return &p, nil
}

func scanSubscription(row rowScanner) (*models.SubscriptionRecord, error) {
	var (
		s                             models.SubscriptionRecord
		userID, membershipNumber      sql.NullString
		details, payment, attrs, meta []byte
		deleted                       bool
	)
	if err := row.Scan(&s.ID, &s.ApplicationID, &userID, &details, &payment, &membershipNumber,
		&attrs, &meta, &deleted, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.UserID = userID.String
	s.MembershipNumber = membershipNumber.String
	if err := decodeAll(field{details, &s.Details}, field{attrs, &s.SubscriptionAttributes}, field{meta, &s.Meta}); err != nil {
		return nil, err
	}
	if len(payment) > 0 && string(payment) != "null" {
		s.PaymentDetails = &models.PaymentDetails{}
		if err := json.Unmarshal(payment, s.PaymentDetails); err != nil {
			return nil, fmt.Errorf("decode payment_details: %w", err)
		}
	}
	s.Meta.Deleted = deleted
	s.Meta.IsActive = !deleted
	return &s, nil
}

type field struct {
	raw []byte
	dst interface{}
}

func decodeAll(fields ...field) error {
	for _, f := range fields {
		if len(f.raw) == 0 || string(f.raw) == "null" {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return fmt.Errorf("decode jsonb: %w", err)
		}
	}
	return nil
}

func encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return b, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// storedMeta is the JSONB form of RecordMeta; deletion lives in its own column.
type storedMeta struct {
	CreatedBy string          `json:"createdBy,omitempty"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	UserType  models.UserType `json:"userType,omitempty"`
}

func encodeMeta(m models.RecordMeta) ([]byte, error) {
	return encode(storedMeta{CreatedBy: m.CreatedBy, UpdatedBy: m.UpdatedBy, UserType: m.UserType})
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// ==========================
// Reads
// ==========================

func (s *Postgres) GetByApplicationID(ctx context.Context, applicationID string) (*models.Application, error) {
	personal, err := s.getPersonal(ctx, s.client.DB, applicationID, false)
	if err != nil {
		return nil, err
	}
	app := &models.Application{Personal: personal}

	app.Professional, err = s.getProfessional(ctx, s.client.DB, applicationID, false)
	if err != nil && !errors.Is(err, apperrors.ErrRecordNotFound) {
		return nil, err
	}
	app.Subscription, err = s.getSubscription(ctx, s.client.DB, applicationID, false)
	if err != nil && !errors.Is(err, apperrors.ErrRecordNotFound) {
		return nil, err
	}
	return app, nil
}

func (s *Postgres) GetOpenPersonalByUser(ctx context.Context, userID string) (*models.PersonalRecord, error) {
	row := s.client.DB.QueryRowContext(ctx, `
		SELECT `+personalColumns+` FROM personal_details
		WHERE user_id = $1 AND NOT deleted AND status NOT IN ('approved', 'rejected')
		ORDER BY created_at DESC LIMIT 1`, userID)
	p, err := scanPersonal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("get open personal by user", err)
	}
	return p, nil
}

func (s *Postgres) OwnerOf(ctx context.Context, applicationID string) (string, error) {
	var userID sql.NullString
	err := s.client.DB.QueryRowContext(ctx, `
		SELECT user_id FROM personal_details
		WHERE application_id = $1
		ORDER BY deleted, updated_at DESC LIMIT 1`, applicationID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return "", apperrors.NewDatabaseQueryError("get application owner", err)
	}
	return userID.String, nil
}

func (s *Postgres) getPersonal(ctx context.Context, q querier, applicationID string, forUpdate bool) (*models.PersonalRecord, error) {
	query := `SELECT ` + personalColumns + ` FROM personal_details WHERE application_id = $1 AND NOT deleted`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPersonal(q.QueryRowContext(ctx, query, applicationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("get personal details", err)
	}
	return p, nil
}

func (s *Postgres) getProfessional(ctx context.Context, q querier, applicationID string, forUpdate bool) (*models.ProfessionalRecord, error) {
	query := `SELECT ` + professionalColumns + ` FROM professional_details WHERE application_id = $1 AND NOT deleted`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanProfessional(q.QueryRowContext(ctx, query, applicationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(KindProfessional, applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("get professional details", err)
	}
	return p, nil
}

func (s *Postgres) getSubscription(ctx context.Context, q querier, applicationID string, forUpdate bool) (*models.SubscriptionRecord, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscription_details WHERE application_id = $1 AND NOT deleted`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	sub, err := scanSubscription(q.QueryRowContext(ctx, query, applicationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(KindSubscription, applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("get subscription details", err)
	}
	return sub, nil
}

func (s *Postgres) ListApplications(ctx context.Context, filter models.ListFilter) ([]*models.Application, error) {
	var (
		where = []string{"NOT deleted"}
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM personal_details WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		personalColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.client.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("list applications", err)
	}
	defer rows.Close()

	var (
		apps  []*models.Application
		ids   []string
		index = map[string]*models.Application{}
	)
	for rows.Next() {
		p, err := scanPersonal(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseQueryError("scan personal details", err)
		}
		app := &models.Application{Personal: p}
		apps = append(apps, app)
		ids = append(ids, p.ApplicationID)
		index[p.ApplicationID] = app
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryError("list applications", err)
	}
	if len(ids) == 0 {
		return apps, nil
	}

	profRows, err := s.client.DB.QueryContext(ctx,
		`SELECT `+professionalColumns+` FROM professional_details WHERE application_id = ANY($1) AND NOT deleted`,
		pq.Array(ids))
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("list professional details", err)
	}
	defer profRows.Close()
	for profRows.Next() {
		p, err := scanProfessional(profRows)
		if err != nil {
			return nil, apperrors.NewDatabaseQueryError("scan professional details", err)
		}
		if app, ok := index[p.ApplicationID]; ok {
			app.Professional = p
		}
	}
	if err := profRows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryError("list professional details", err)
	}

	subRows, err := s.client.DB.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription_details WHERE application_id = ANY($1) AND NOT deleted`,
		pq.Array(ids))
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError("list subscription details", err)
	}
	defer subRows.Close()
	for subRows.Next() {
		sub, err := scanSubscription(subRows)
		if err != nil {
			return nil, apperrors.NewDatabaseQueryError("scan subscription details", err)
		}
		if app, ok := index[sub.ApplicationID]; ok {
			app.Subscription = sub
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryError("list subscription details", err)
	}
	return apps, nil
}

// ==========================
// Personal details
// ==========================

func (s *Postgres) CreatePersonal(ctx context.Context, rec *models.PersonalRecord) (*models.PersonalRecord, error) {
	now := s.now()
	p := *rec
	if p.ApplicationID == "" {
		p.ApplicationID = uuid.NewString()
	}
	p.ID = uuid.NewString()
	p.Status = models.StatusInProgress
	p.ApprovalDetails = models.ApprovalDetails{}
	p.Derive(now)

	// An id is never reused, even after soft delete; its children and its
	// deleted Personal row still belong to the original owner.
	var exists bool
	if err := s.client.DB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM personal_details WHERE application_id = $1)
			OR EXISTS(SELECT 1 FROM professional_details WHERE application_id = $1)
			OR EXISTS(SELECT 1 FROM subscription_details WHERE application_id = $1)`,
		p.ApplicationID).Scan(&exists); err != nil {
		return nil, apperrors.NewDatabaseQueryError("personal duplicate check", err)
	}
	if exists {
		return nil, apperrors.NewDuplicateRecordError(KindPersonal, p.ApplicationID)
	}

	info, err := encode(p.PersonalInfo)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	contact, err := encode(p.ContactInfo)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	approval, err := encode(p.ApprovalDetails)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	meta, err := encodeMeta(p.Meta)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	created, err := scanPersonal(s.client.DB.QueryRowContext(ctx, `
		INSERT INTO personal_details (
			id, application_id, user_id, personal_info, contact_info,
			status, approval_details, meta, deleted, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, 1, $9, $9)
		RETURNING `+personalColumns,
		p.ID, p.ApplicationID, nullable(p.UserID), info, contact,
		string(p.Status), approval, meta, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewDuplicateRecordError(KindPersonal, p.ApplicationID)
		}
		return nil, apperrors.NewDatabaseWriteError("insert personal details", err)
	}

	s.logger.Info("personal details created", map[string]interface{}{
		"applicationId": created.ApplicationID,
		"userType":      string(created.Meta.UserType),
	})
	return created, nil
}

func (s *Postgres) UpdatePersonal(ctx context.Context, applicationID string, info models.PersonalInfo, contact models.ContactInfo, updatedBy string) (*models.PersonalRecord, error) {
	probe := models.PersonalRecord{PersonalInfo: info, ContactInfo: contact}
	probe.Derive(s.now())

	infoJSON, err := encode(probe.PersonalInfo)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	contactJSON, err := encode(probe.ContactInfo)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	updated, err := scanPersonal(s.client.DB.QueryRowContext(ctx, `
		UPDATE personal_details
		SET personal_info = $2, contact_info = $3,
		    meta = meta || jsonb_build_object('updatedBy', $4::text),
		    version = version + 1, updated_at = $5
		WHERE application_id = $1 AND NOT deleted
		RETURNING `+personalColumns,
		applicationID, infoJSON, contactJSON, updatedBy, s.now(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseWriteError("update personal details", err)
	}
	return updated, nil
}

func (s *Postgres) SoftDeletePersonal(ctx context.Context, applicationID, deletedBy string) error {
	return s.softDelete(ctx, "personal_details", KindPersonal, applicationID, deletedBy)
}

func (s *Postgres) RestorePersonal(ctx context.Context, applicationID, restoredBy string) (*models.PersonalRecord, error) {
	var restored *models.PersonalRecord
	err := s.restore(ctx, "personal_details", KindPersonal, personalColumns, applicationID, restoredBy, func(row rowScanner) error {
		var err error
		restored, err = scanPersonal(row)
		return err
	})
	return restored, err
}

// ==========================
// Shared soft delete / restore
// ==========================

func (s *Postgres) softDelete(ctx context.Context, table, kind, applicationID, deletedBy string) error {
	res, err := s.client.DB.ExecContext(ctx, `
		UPDATE `+table+`
		SET deleted = TRUE, meta = meta || jsonb_build_object('updatedBy', $2::text), updated_at = $3
		WHERE application_id = $1 AND NOT deleted`,
		applicationID, deletedBy, s.now())
	if err != nil {
		return apperrors.NewDatabaseWriteError("soft delete "+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseWriteError("soft delete "+table, err)
	}
	if n == 0 {
		if table == "personal_details" {
			return apperrors.NewApplicationNotFoundError(applicationID)
		}
		return apperrors.NewRecordNotFoundError(kind, applicationID)
	}
	s.logger.Info("record soft deleted", map[string]interface{}{
		"table":         table,
		"applicationId": applicationID,
	})
	return nil
}

// restore revives the most recently deleted row for applicationID unless a
// live row already exists.
func (s *Postgres) restore(ctx context.Context, table, kind, columns, applicationID, restoredBy string, scan func(rowScanner) error) error {
	var live bool
	if err := s.client.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE application_id = $1 AND NOT deleted)`,
		applicationID).Scan(&live); err != nil {
		return apperrors.NewDatabaseQueryError("restore check "+table, err)
	}
	if live {
		return apperrors.NewDuplicateRecordError(kind, applicationID)
	}

	err := scan(s.client.DB.QueryRowContext(ctx, `
		UPDATE `+table+`
		SET deleted = FALSE, meta = meta || jsonb_build_object('updatedBy', $2::text), updated_at = $3
		WHERE id = (
			SELECT id FROM `+table+`
			WHERE application_id = $1 AND deleted
			ORDER BY updated_at DESC LIMIT 1
		)
		RETURNING `+columns,
		applicationID, restoredBy, s.now()))
	if errors.Is(err, sql.ErrNoRows) {
		if table == "personal_details" {
			return apperrors.NewApplicationNotFoundError(applicationID)
		}
		return apperrors.NewRecordNotFoundError(kind, applicationID)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewDuplicateRecordError(kind, applicationID)
		}
		return apperrors.NewDatabaseWriteError("restore "+table, err)
	}
	s.logger.Info("record restored", map[string]interface{}{
		"table":         table,
		"applicationId": applicationID,
	})
	return nil
}

// requirePersonal enforces that child records hang off a live application.
func (s *Postgres) requirePersonal(ctx context.Context, applicationID string) error {
	var exists bool
	if err := s.client.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM personal_details WHERE application_id = $1 AND NOT deleted)`,
		applicationID).Scan(&exists); err != nil {
		return apperrors.NewDatabaseQueryError("personal existence check", err)
	}
	if !exists {
		return apperrors.NewApplicationNotFoundError(applicationID)
	}
	return nil
}
