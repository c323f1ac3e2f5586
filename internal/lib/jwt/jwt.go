package jwt

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stox_auth/internal/config"
	"stox_auth/internal/models"
)

const opaqueTokenBytes = 64

// NewAccessToken mints a signed HS256 token for one request window.
// Claims: sub = email, userId = numeric id as string, role, iss, aud, iat, exp.
func NewAccessToken(cfg config.JWT, user models.User, role string) (string, error) {
	const op = "jwt.NewAccessToken"

	now := time.Now()

	claims := jwt.MapClaims{
		"sub":    user.Email,
		"userId": strconv.FormatInt(user.ID, 10),
		"role":   role,
		"iss":    cfg.Issuer,
		"aud":    cfg.Audience,
		"iat":    now.Unix(),
		"exp":    now.Add(cfg.AccessTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

type AccessClaims struct {
	UserID   int64
	Email    string
	Role     string
	IssuedAt time.Time
}

// ParseAccessToken verifies signature, expiry, issuer and audience, and
// extracts the identity claims.
func ParseAccessToken(tokenStr string, cfg config.JWT) (AccessClaims, error) {
	const op = "jwt.ParseAccessToken"

	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithAudience(cfg.Audience), jwt.WithExpirationRequired())
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%s: failed to parse token: %w", op, err)
	}

	if !parsedToken.Valid {
		return AccessClaims{}, fmt.Errorf("%s: invalid token", op)
	}

	userIDStr, ok := claims["userId"].(string)
	if !ok {
		return AccessClaims{}, fmt.Errorf("%s: missing userId claim", op)
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%s: malformed userId claim: %w", op, err)
	}

	email, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)

	var issuedAt time.Time
	if iatFloat, ok := claims["iat"].(float64); ok {
		issuedAt = time.Unix(int64(iatFloat), 0)
	}

	return AccessClaims{
		UserID:   userID,
		Email:    email,
		Role:     role,
		IssuedAt: issuedAt,
	}, nil
}

// NewOpaqueToken returns 64 cryptographically random bytes, base64-encoded.
// Used for both refresh and password-reset tokens.
func NewOpaqueToken() (string, error) {
	const op = "jwt.NewOpaqueToken"

	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}
