package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL применяется, когда у компании не задан token_ttl_seconds.
const DefaultTokenTTL = 14 * 24 * time.Hour

// SigningAlg — алгоритм подписи токенов компании.
type SigningAlg string

const (
	AlgHS256 SigningAlg = "HS256"
	AlgHS384 SigningAlg = "HS384"
	AlgHS512 SigningAlg = "HS512"
)

func (a SigningAlg) Valid() bool {
	switch a {
	case AlgHS256, AlgHS384, AlgHS512:
		return true
	}
	return false
}

// * Method возвращает HMAC-метод подписи для алгоритма.
func (a SigningAlg) Method() *jwt.SigningMethodHMAC {
	switch a {
	case AlgHS384:
		return jwt.SigningMethodHS384
	case AlgHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

type Company struct {
	ID              int64
	Name            string
	CallbackURL     string
	JWTAlg          SigningAlg
	TokenTTLSeconds int64
	CreatedAt       time.Time
}

// * TokenTTL возвращает срок жизни токена компании или значение по умолчанию.
func (c Company) TokenTTL() time.Duration {
	if c.TokenTTLSeconds <= 0 {
		return DefaultTokenTTL
	}
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

type SigningSecret struct {
	ID        int64
	CompanyID int64
	Secret    string
	IsActive  bool
	CreatedAt time.Time
}

type User struct {
	ID          int64
	CompanyID   int64
	FirstName   string
	LastName    string
	PhoneNumber string
	Role        string
	CreatedAt   time.Time
}

type VerificationKey struct {
	UserID    int64
	KeyValue  string
	UpdatedAt time.Time
}

type IssuedToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
}

// EntryEvent публикуется в очередь аудита после успешного входа по ключу.
type EntryEvent struct {
	UserID    int64  `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	TokenID   string `json:"token_id"`
	IssuedAt  int64  `json:"issued_at"`
}
