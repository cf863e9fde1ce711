package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"entry_service/internal/lib/credential"
	sl "entry_service/internal/lib/logger"
	"entry_service/internal/lib/token"
	"entry_service/internal/models"
	"entry_service/internal/storage"
)

var (
	ErrCompanyNotFound   = errors.New("company not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrNoCallbackURL     = errors.New("company has no callback url")
	ErrNoActiveSecret    = errors.New("company has no active signing secret")
	ErrMissingCompany    = errors.New("missing company identifier")
	ErrMissingIdentifier = errors.New("missing user identifier")
	ErrMissingKey        = errors.New("missing personal key")
	ErrInvalidKey        = errors.New("invalid personal key")
	ErrTooManyAttempts   = errors.New("too many failed attempts")
)

// Params — сырые параметры запроса на вход. Все значения недоверенные.
type Params struct {
	CompanyID   int64 // 0 — не передан
	CompanyName string
	Phone       string
	FirstName   string
	LastName    string
	Key         string
	Token       string
}

// Result — исход успешного входа: адрес редиректа и признак выпуска токена.
// Issued=false означает срабатывание короткого пути по действующему токену,
// без новой строки в журнале выданных токенов.
type Result struct {
	RedirectURL string
	Issued      bool
}

type CompanyProvider interface {
	CompanyByID(ctx context.Context, id int64) (models.Company, error)
	CompanyByName(ctx context.Context, name string) (models.Company, error)
}

type SecretProvider interface {
	ActiveSecret(ctx context.Context, companyID int64) (string, error)
}

type UserProvider interface {
	UserByPhone(ctx context.Context, companyID int64, phone string) (models.User, error)
	UserByName(ctx context.Context, companyID int64, first, last string) (models.User, error)
}

type KeyProvider interface {
	VerificationKey(ctx context.Context, userID int64) (string, error)
}

type TokenRecorder interface {
	SaveIssuedToken(ctx context.Context, userID int64, token string) error
}

// AttemptLimiter ограничивает перебор персональных ключей. Необязателен.
type AttemptLimiter interface {
	TooManyAttempts(ctx context.Context, companyID, userID int64) (bool, error)
	RegisterFailure(ctx context.Context, companyID, userID int64) error
}

// EventPublisher отправляет событие аудита об успешном входе. Необязателен.
type EventPublisher interface {
	SendEntryEvent(ctx context.Context, event models.EntryEvent) error
}

type Entry struct {
	log       *slog.Logger
	companies CompanyProvider
	secrets   SecretProvider
	users     UserProvider
	keys      KeyProvider
	ledger    TokenRecorder
	attempts  AttemptLimiter
	events    EventPublisher
}

func New(
	log *slog.Logger,
	companyProvider CompanyProvider,
	secretProvider SecretProvider,
	userProvider UserProvider,
	keyProvider KeyProvider,
	tokenRecorder TokenRecorder,
	attemptLimiter AttemptLimiter,
	eventPublisher EventPublisher,
) *Entry {
	return &Entry{
		log:       log,
		companies: companyProvider,
		secrets:   secretProvider,
		users:     userProvider,
		keys:      keyProvider,
		ledger:    tokenRecorder,
		attempts:  attemptLimiter,
		events:    eventPublisher,
	}
}

// * Enter обменивает действующий токен либо персональный ключ на редирект
// с сессионным токеном.
//
// Порядок шагов фиксирован: компания → активный секрет → короткий путь по
// токену → проверка ключа → выпуск токена и запись в журнал. Невалидный или
// истекший токен — не ошибка, а именованный переход на путь проверки ключа.
func (e *Entry) Enter(ctx context.Context, p Params) (Result, error) {
	const op = "entry.Enter"

	log := e.log.With(slog.String("op", op))

	company, err := e.resolveCompany(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrCompanyNotFound) {
			log.Warn("company not found")
			return Result{}, ErrCompanyNotFound
		}
		if errors.Is(err, ErrMissingCompany) {
			return Result{}, err
		}

		log.Error("failed to resolve company", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.Int64("company_id", company.ID))

	if company.CallbackURL == "" {
		log.Error("company has no callback url")
		return Result{}, ErrNoCallbackURL
	}

	secret, err := e.secrets.ActiveSecret(ctx, company.ID)
	if err != nil {
		if errors.Is(err, storage.ErrSecretNotFound) {
			log.Error("company has no active signing secret")
			return Result{}, ErrNoActiveSecret
		}

		log.Error("failed to resolve active secret", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	// Короткий путь: действующий токен возвращается как есть, без выпуска
	// нового и без записи в журнал.
	if p.Token != "" {
		if err := token.Verify(p.Token, secret, company.JWTAlg); err == nil {
			redirect, err := redirectURL(company.CallbackURL, p.Token)
			if err != nil {
				log.Error("failed to build redirect url", sl.Err(err))
				return Result{}, fmt.Errorf("%s: %w", op, err)
			}

			log.Info("entry via existing token")
			return Result{RedirectURL: redirect}, nil
		}

		log.Debug("presented token rejected, falling through to key verification")
	}

	if p.Phone == "" && (p.FirstName == "" || p.LastName == "") {
		return Result{}, ErrMissingIdentifier
	}

	if p.Key == "" {
		return Result{}, ErrMissingKey
	}

	user, err := e.resolveUser(ctx, company.ID, p)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return Result{}, ErrUserNotFound
		}

		log.Error("failed to resolve user", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.Int64("user_id", user.ID))

	if e.attempts != nil {
		blocked, err := e.attempts.TooManyAttempts(ctx, company.ID, user.ID)
		if err != nil {
			log.Error("attempt limiter failed", sl.Err(err))
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		if blocked {
			log.Warn("too many failed key attempts")
			return Result{}, ErrTooManyAttempts
		}
	}

	stored, err := e.keys.VerificationKey(ctx, user.ID)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		log.Error("failed to resolve verification key", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if !credential.Verify(p.Key, stored) {
		log.Info("personal key rejected")

		if e.attempts != nil {
			if err := e.attempts.RegisterFailure(ctx, company.ID, user.ID); err != nil {
				log.Error("failed to register failed attempt", sl.Err(err))
			}
		}

		return Result{}, ErrInvalidKey
	}

	signed, err := token.New(user, company, secret)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := e.ledger.SaveIssuedToken(ctx, user.ID, signed); err != nil {
		log.Error("failed to record issued token", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	redirect, err := redirectURL(company.CallbackURL, signed)
	if err != nil {
		log.Error("failed to build redirect url", sl.Err(err))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	if e.events != nil {
		event := models.EntryEvent{
			UserID:    user.ID,
			CompanyID: company.ID,
			TokenID:   token.TokenID(signed),
			IssuedAt:  time.Now().Unix(),
		}

		if err := e.events.SendEntryEvent(ctx, event); err != nil {
			log.Error("failed to publish entry event", sl.Err(err))
		}
	}

	log.Info("entry via personal key, token issued")

	return Result{RedirectURL: redirect, Issued: true}, nil
}

// company_id имеет приоритет над company_name, когда переданы оба.
func (e *Entry) resolveCompany(ctx context.Context, p Params) (models.Company, error) {
	if p.CompanyID != 0 {
		return e.companies.CompanyByID(ctx, p.CompanyID)
	}

	if p.CompanyName != "" {
		return e.companies.CompanyByName(ctx, p.CompanyName)
	}

	return models.Company{}, ErrMissingCompany
}

// phone имеет приоритет над парой имя+фамилия, когда переданы оба.
func (e *Entry) resolveUser(ctx context.Context, companyID int64, p Params) (models.User, error) {
	if p.Phone != "" {
		return e.users.UserByPhone(ctx, companyID, p.Phone)
	}

	return e.users.UserByName(ctx, companyID, p.FirstName, p.LastName)
}

// * redirectURL прикрепляет токен к callback-адресу компании, сохраняя его
// собственные query-параметры.
func redirectURL(callbackURL, tokenStr string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("token", tokenStr)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
