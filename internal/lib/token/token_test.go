package token_test

import (
	"testing"
	"time"

	"entry_service/internal/lib/token"
	"entry_service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func testCompany(alg models.SigningAlg, ttlSeconds int64) models.Company {
	return models.Company{
		ID:              1,
		Name:            "acme",
		CallbackURL:     "https://app.example.com/cb",
		JWTAlg:          alg,
		TokenTTLSeconds: ttlSeconds,
	}
}

func testUser(role string) models.User {
	return models.User{
		ID:          9,
		CompanyID:   1,
		FirstName:   "Ann",
		LastName:    "Lee",
		PhoneNumber: "+15550001",
		Role:        role,
	}
}

func parseClaims(t *testing.T, signed string) jwt.MapClaims {
	t.Helper()

	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(signed, claims, func(tk *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	if err != nil {
		t.Fatalf("failed to parse issued token: %v", err)
	}

	return claims
}

func TestNewAndVerifyRoundTrip(t *testing.T) {
	for _, alg := range []models.SigningAlg{models.AlgHS256, models.AlgHS384, models.AlgHS512} {
		t.Run(string(alg), func(t *testing.T) {
			company := testCompany(alg, 3600)

			signed, err := token.New(testUser("manager"), company, testSecret)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			if err := token.Verify(signed, testSecret, alg); err != nil {
				t.Errorf("Verify rejected a freshly issued token: %v", err)
			}
		})
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	company := testCompany(models.AlgHS256, 3600)

	signed, err := token.New(testUser("manager"), company, testSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := token.Verify(signed, testSecret, models.AlgHS512); err == nil {
		t.Error("Verify accepted a token signed with a different algorithm")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	company := testCompany(models.AlgHS256, 3600)

	signed, err := token.New(testUser("manager"), company, testSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := token.Verify(signed, "other-secret", models.AlgHS256); err == nil {
		t.Error("Verify accepted a token signed with a different secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "9",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
		"jti": "deadbeef",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if err := token.Verify(signed, testSecret, models.AlgHS256); err == nil {
		t.Error("Verify accepted an expired token")
	}
}

func TestVerifyRejectsTokenWithoutExpiry(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "9",
		"iat": time.Now().Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if err := token.Verify(signed, testSecret, models.AlgHS256); err == nil {
		t.Error("Verify accepted a token without an exp claim")
	}
}

func TestClaims(t *testing.T) {
	company := testCompany(models.AlgHS256, 3600)

	signed, err := token.New(testUser("manager"), company, testSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	claims := parseClaims(t, signed)

	if got := claims["sub"]; got != "9" {
		t.Errorf("sub = %v, want %q", got, "9")
	}
	if got := claims["company_id"]; got != "1" {
		t.Errorf("company_id = %v, want %q", got, "1")
	}
	if got := claims["role"]; got != "manager" {
		t.Errorf("role = %v, want %q", got, "manager")
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		t.Fatal("iat claim missing")
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		t.Fatal("exp claim missing")
	}
	if int64(exp-iat) != 3600 {
		t.Errorf("exp-iat = %d, want 3600", int64(exp-iat))
	}
}

func TestLegacyIDClaim(t *testing.T) {
	company := testCompany(models.AlgHS256, 3600)

	cases := []struct {
		role string
		want string
	}{
		{role: "admin", want: "admin"},
		{role: "manager", want: "9"},
		{role: "", want: "9"},
	}

	for _, tc := range cases {
		t.Run("role "+tc.role, func(t *testing.T) {
			signed, err := token.New(testUser(tc.role), company, testSecret)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			claims := parseClaims(t, signed)

			if got := claims["id"]; got != tc.want {
				t.Errorf("id claim = %v, want %q", got, tc.want)
			}
		})
	}
}

func TestDefaultTTL(t *testing.T) {
	company := testCompany(models.AlgHS256, 0)

	signed, err := token.New(testUser("manager"), company, testSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	claims := parseClaims(t, signed)

	iat := claims["iat"].(float64)
	exp := claims["exp"].(float64)

	if int64(exp-iat) != 1209600 {
		t.Errorf("exp-iat = %d, want 1209600 (14 days)", int64(exp-iat))
	}
}

func TestTokenIDIsUnique(t *testing.T) {
	company := testCompany(models.AlgHS256, 3600)

	first, err := token.New(testUser("manager"), company, testSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := token.New(testUser("manager"), company, testSecret)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	firstID := token.TokenID(first)
	secondID := token.TokenID(second)

	if firstID == "" || secondID == "" {
		t.Fatal("issued token has no jti claim")
	}
	if len(firstID) != 32 {
		t.Errorf("jti length = %d, want 32 hex chars", len(firstID))
	}
	if firstID == secondID {
		t.Error("two issued tokens share the same jti")
	}
}
