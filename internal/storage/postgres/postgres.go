package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entry_service/internal/config"
	"entry_service/internal/models"
	"entry_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveCompany(ctx context.Context, c models.Company) (int64, error) {
	const op = "storage.postgres.SaveCompany"

	query := `
		INSERT INTO companies (name, callback_url, jwt_alg, token_ttl_seconds)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, c.Name, c.CallbackURL, string(c.JWTAlg), c.TokenTTLSeconds).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, storage.ErrCompanyExists
		}

		return 0, fmt.Errorf("%s: failed to save company: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) CompanyByID(ctx context.Context, id int64) (models.Company, error) {
	query := `
		SELECT id, name, COALESCE(callback_url, ''), jwt_alg, token_ttl_seconds, created_at
		FROM companies
		WHERE id = $1;
	`

	return r.scanCompany(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) CompanyByName(ctx context.Context, name string) (models.Company, error) {
	query := `
		SELECT id, name, COALESCE(callback_url, ''), jwt_alg, token_ttl_seconds, created_at
		FROM companies
		WHERE name = $1;
	`

	return r.scanCompany(r.pool.QueryRow(ctx, query, name))
}

func (r *PostgresRepo) Companies(ctx context.Context) ([]models.Company, error) {
	const op = "storage.postgres.Companies"

	query := `
		SELECT id, name, COALESCE(callback_url, ''), jwt_alg, token_ttl_seconds, created_at
		FROM companies
		ORDER BY id;
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var companies []models.Company

	for rows.Next() {
		var c models.Company
		var alg string

		err := rows.Scan(&c.ID, &c.Name, &c.CallbackURL, &alg, &c.TokenTTLSeconds, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		c.JWTAlg = models.SigningAlg(alg)
		companies = append(companies, c)
	}

	return companies, rows.Err()
}

func (r *PostgresRepo) DeleteCompany(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteCompany"

	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrCompanyNotFound
	}

	return nil
}

// * RotateSecret деактивирует прежние секреты компании и вставляет новый активный.
// Оба шага идут в одной транзакции, чтобы компания не осталась без активного секрета.
func (r *PostgresRepo) RotateSecret(ctx context.Context, companyID int64, secret string) error {
	const op = "storage.postgres.RotateSecret"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `UPDATE signing_secrets SET is_active = FALSE WHERE company_id = $1`, companyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO signing_secrets (company_id, jwt, is_active) VALUES ($1, $2, TRUE)`,
		companyID, secret,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return tx.Commit(ctx)
}

// * ActiveSecret возвращает самый свежий активный секрет компании.
// Моделью допускается несколько строк с is_active = TRUE, побеждает последняя созданная.
func (r *PostgresRepo) ActiveSecret(ctx context.Context, companyID int64) (string, error) {
	query := `
		SELECT jwt
		FROM signing_secrets
		WHERE company_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC, id DESC
		LIMIT 1;
	`

	var secret string

	err := r.pool.QueryRow(ctx, query, companyID).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrSecretNotFound
	}

	return secret, err
}

func (r *PostgresRepo) SaveUser(ctx context.Context, u models.User) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (company_id, first_name, last_name, phone_number, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, u.CompanyID, u.FirstName, u.LastName, u.PhoneNumber, u.Role).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" {
				return 0, storage.ErrUserExists
			}
			if pgErr.Code == "23503" {
				return 0, storage.ErrCompanyNotFound
			}
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, company_id, first_name, last_name, phone_number, role, created_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) UserByPhone(ctx context.Context, companyID int64, phone string) (models.User, error) {
	query := `
		SELECT id, company_id, first_name, last_name, phone_number, role, created_at
		FROM users
		WHERE company_id = $1 AND phone_number = $2;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, companyID, phone))
}

func (r *PostgresRepo) UserByName(ctx context.Context, companyID int64, first, last string) (models.User, error) {
	query := `
		SELECT id, company_id, first_name, last_name, phone_number, role, created_at
		FROM users
		WHERE company_id = $1 AND first_name = $2 AND last_name = $3;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, companyID, first, last))
}

func (r *PostgresRepo) UsersByCompany(ctx context.Context, companyID int64) ([]models.User, error) {
	const op = "storage.postgres.UsersByCompany"

	query := `
		SELECT id, company_id, first_name, last_name, phone_number, role, created_at
		FROM users
		WHERE company_id = $1
		ORDER BY id;
	`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []models.User

	for rows.Next() {
		var u models.User

		err := rows.Scan(&u.ID, &u.CompanyID, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Role, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, u)
	}

	return users, rows.Err()
}

func (r *PostgresRepo) DeleteUser(ctx context.Context, id int64) error {
	const op = "storage.postgres.DeleteUser"

	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

// * SetVerificationKey создает либо перезаписывает персональный ключ пользователя.
func (r *PostgresRepo) SetVerificationKey(ctx context.Context, userID int64, keyValue string) error {
	const op = "storage.postgres.SetVerificationKey"

	query := `
		INSERT INTO verification_keys (user_id, key_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET key_value = EXCLUDED.key_value, updated_at = NOW();
	`

	_, err := r.pool.Exec(ctx, query, userID, keyValue)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
			return storage.ErrUserNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) VerificationKey(ctx context.Context, userID int64) (string, error) {
	query := `
		SELECT COALESCE(key_value, '')
		FROM verification_keys
		WHERE user_id = $1;
	`

	var key string

	err := r.pool.QueryRow(ctx, query, userID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrKeyNotFound
	}

	return key, err
}

func (r *PostgresRepo) DeleteVerificationKey(ctx context.Context, userID int64) error {
	const op = "storage.postgres.DeleteVerificationKey"

	tag, err := r.pool.Exec(ctx, `DELETE FROM verification_keys WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrKeyNotFound
	}

	return nil
}

func (r *PostgresRepo) SaveIssuedToken(ctx context.Context, userID int64, token string) error {
	const op = "storage.postgres.SaveIssuedToken"

	_, err := r.pool.Exec(ctx,
		`INSERT INTO issued_tokens (user_id, token) VALUES ($1, $2)`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) IssuedTokensByUser(ctx context.Context, userID int64) ([]models.IssuedToken, error) {
	const op = "storage.postgres.IssuedTokensByUser"

	query := `
		SELECT id, user_id, token, created_at
		FROM issued_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC;
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tokens []models.IssuedToken

	for rows.Next() {
		var t models.IssuedToken

		err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		tokens = append(tokens, t)
	}

	return tokens, rows.Err()
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) scanCompany(row pgx.Row) (models.Company, error) {
	var c models.Company
	var alg string

	err := row.Scan(&c.ID, &c.Name, &c.CallbackURL, &alg, &c.TokenTTLSeconds, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Company{}, storage.ErrCompanyNotFound
		}

		return models.Company{}, err
	}

	c.JWTAlg = models.SigningAlg(alg)

	return c, nil
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User

	err := row.Scan(&u.ID, &u.CompanyID, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

// * dsn формирует конфигурацию базы данных.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
