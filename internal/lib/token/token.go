package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"entry_service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIDBytes — энтропия уникального идентификатора токена (jti).
const tokenIDBytes = 16

// * New выпускает подписанный сессионный токен для пользователя компании.
//
// Клейм "id" наследует правило старых потребителей: для роли "admin" — литерал
// "admin", для всех остальных — числовой id пользователя строкой. Роль при этом
// дублируется отдельным клеймом "role" как есть.
func New(user models.User, company models.Company, secret string) (string, error) {
	const op = "token.New"

	jti, err := newTokenID()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()

	claims := jwt.MapClaims{
		"sub":        strconv.FormatInt(user.ID, 10),
		"company_id": strconv.FormatInt(company.ID, 10),
		"id":         legacyID(user),
		"role":       user.Role,
		"iat":        now.Unix(),
		"exp":        now.Add(company.TokenTTL()).Unix(),
		"jti":        jti,
	}

	signed, err := jwt.NewWithClaims(company.JWTAlg.Method(), claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// * Verify проверяет подпись и срок действия токена.
// Токен, подписанный не тем алгоритмом, который сейчас настроен у компании,
// отклоняется даже при верном секрете.
func Verify(tokenStr, secret string, alg models.SigningAlg) error {
	const op = "token.Verify"

	parsed, err := jwt.Parse(
		tokenStr,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != string(alg) {
				return nil, fmt.Errorf("%s: unexpected signing method %s", op, t.Method.Alg())
			}
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{string(alg)}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to parse token: %w", op, err)
	}

	if !parsed.Valid {
		return fmt.Errorf("%s: invalid token", op)
	}

	return nil
}

// * TokenID достает клейм jti из уже выпущенного токена без проверки подписи.
// Используется только для аудита успешного входа.
func TokenID(tokenStr string) string {
	claims := jwt.MapClaims{}

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return ""
	}

	jti, _ := claims["jti"].(string)

	return jti
}

// * NewSecret генерирует материал для подписывающего секрета или персонального ключа.
func NewSecret() (string, error) {
	const op = "token.NewSecret"

	buf := make([]byte, 32)

	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return hex.EncodeToString(buf), nil
}

func legacyID(user models.User) string {
	if user.Role == "admin" {
		return "admin"
	}

	return strconv.FormatInt(user.ID, 10)
}

func newTokenID() (string, error) {
	buf := make([]byte, tokenIDBytes)

	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
