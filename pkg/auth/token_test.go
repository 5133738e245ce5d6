package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/leadrouter-backend/pkg/config"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "leadrouter-test",
		ExpirationMinutes: 15,
	}
}

func TestMintAndParseRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	adminID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		AdminID: adminID,
		Role:    enums.AdminRoleOperator,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.AdminID != adminID {
		t.Fatalf("admin id mismatch: %s vs %s", claims.AdminID, adminID)
	}
	if claims.Role != enums.AdminRoleOperator {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatal("jti should be generated when not supplied")
	}
}

func TestMintValidatesInputs(t *testing.T) {
	t.Parallel()

	now := time.Now()
	valid := AccessTokenPayload{AdminID: uuid.New(), Role: enums.AdminRoleAdmin}

	cfg := testJWTConfig()
	cfg.Secret = ""
	if _, err := MintAccessToken(cfg, now, valid); err == nil {
		t.Fatal("empty secret must fail")
	}

	cfg = testJWTConfig()
	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{AdminID: uuid.Nil, Role: enums.AdminRoleAdmin}); err == nil {
		t.Fatal("nil admin id must fail")
	}
	if _, err := MintAccessToken(cfg, now, AccessTokenPayload{AdminID: uuid.New(), Role: enums.AdminRole("viewer")}); err == nil {
		t.Fatal("unknown role must fail")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	past := time.Now().Add(-2 * time.Hour)
	token, err := MintAccessToken(cfg, past, AccessTokenPayload{
		AdminID: uuid.New(),
		Role:    enums.AdminRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expired token must fail validation")
	}
}

func TestParseRejectsWrongSecretAndIssuer(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		AdminID: uuid.New(),
		Role:    enums.AdminRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	other := cfg
	other.Secret = "different-secret"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("wrong secret must fail")
	}

	other = cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("wrong issuer must fail")
	}
}
