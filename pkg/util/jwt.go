package util

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims 外部认证服务签发的 token 中需要的字段
type Claims struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   string
}

type tokenClaims struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT 仅用于测试和本地调试
func GenerateJWT(c Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: c.UserID.String(),
		OrgID:  c.OrgID.String(),
		Role:   c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseJWT validates an HS256 token and extracts the caller identity.
func ParseJWT(tokenStr, secret string) (Claims, error) {
	var tc tokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &tc, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}

	userID, err := uuid.Parse(tc.UserID)
	if err != nil {
		return Claims{}, errors.Join(jwt.ErrTokenMalformed, err)
	}
	orgID, err := uuid.Parse(tc.OrgID)
	if err != nil {
		return Claims{}, errors.Join(jwt.ErrTokenMalformed, err)
	}

	return Claims{UserID: userID, OrgID: orgID, Role: tc.Role}, nil
}

func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
