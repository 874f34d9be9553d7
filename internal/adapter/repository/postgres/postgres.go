package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
)

const (
	uniqueViolationErrCode = "23505"
	txHashConstraint       = "urls_tx_hash_key"
)

// classifyError maps driver errors onto entity errors. The second return value
// is false when err has no entity counterpart.
func classifyError(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode {
		if pgErr.ConstraintName == txHashConstraint {
			return entity.ErrPaymentAlreadyUsed, true
		}
		return entity.ErrShortCodeExists, true
	}

	if isConnectionError(err) {
		return entity.ErrStorageUnavailable, true
	}

	return nil, false
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || pgconn.Timeout(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func wrapError(op, msg string, err error) error {
	if kind, ok := classifyError(err); ok {
		return fmt.Errorf("%s: %w: %w", op, kind, err)
	}

	return fmt.Errorf("%s: %s: %w", op, msg, err)
}

type urlDB struct {
	ID           int64          `db:"id"`
	ShortCode    string         `db:"short_code"`
	OriginalURL  string         `db:"original_url"`
	IsActive     bool           `db:"is_active"`
	TxHash       sql.NullString `db:"tx_hash"`
	PayerAddress sql.NullString `db:"payer_address"`
	AccessCount  int64          `db:"access_count"`
	ExpiresAt    sql.NullTime   `db:"expires_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (u *urlDB) toEntity() *entity.URL {
	url := &entity.URL{
		ID:          u.ID,
		ShortCode:   u.ShortCode,
		OriginalURL: u.OriginalURL,
		Active:      u.IsActive,
		Payment: entity.Payment{
			TxHash:       u.TxHash.String,
			PayerAddress: u.PayerAddress.String,
		},
		URLStats: entity.URLStats{
			AccessCount: u.AccessCount,
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}

	if u.ExpiresAt.Valid {
		t := u.ExpiresAt.Time
		url.ExpiresAt = &t
	}

	return url
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{db: db}
}

func (r *URLRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	const op = "adapter.repository.postgres.URLRepository.Exists"
	const query = `SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = $1)`

	var exists bool

	if err := r.db.GetContext(ctx, &exists, query, shortCode); err != nil {
		return false, wrapError(op, "failed to check urls table", err)
	}

	return exists, nil
}

// Save inserts a URL in a single statement. The unique constraint on short_code
// is what makes concurrent submissions safe.
func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string, payment entity.Payment, expiresAt *time.Time) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.Save"
	const query = `INSERT INTO urls(short_code, original_url, tx_hash, payer_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`

	var url urlDB

	err := r.db.GetContext(ctx, &url, query,
		shortCode,
		originalURL,
		nullString(payment.TxHash),
		nullString(payment.PayerAddress),
		nullTime(expiresAt),
	)
	if err != nil {
		return nil, wrapError(op, "failed to insert into urls table", err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveByShortCode"
	const query = `SELECT * FROM urls WHERE short_code = $1`

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, wrapError(op, "failed to get row from urls table", err)
	}

	return url.toEntity(), nil
}

// RetrieveAndUpdateStats counts an access to an active, unexpired URL.
// Retired and expired URLs are reported as not found.
func (r *URLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.RetrieveAndUpdateStats"
	const query = `UPDATE urls
		SET access_count = access_count + 1, updated_at = NOW()
		WHERE short_code = $1
			AND is_active
			AND (expires_at IS NULL OR expires_at > NOW())
		RETURNING *`

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, wrapError(op, "failed to get and update urls table row", err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) Deactivate(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.postgres.URLRepository.Deactivate"
	const query = `UPDATE urls SET is_active = FALSE, updated_at = NOW() WHERE short_code = $1 AND is_active`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return wrapError(op, "failed to update urls table row", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return nil
}
