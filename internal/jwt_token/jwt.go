package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "waterlily/pkg/domain-errors"
)

// Claims are the access token claims issued by the account service.
type Claims struct {
	UserID int64  `json:"id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTService validates access tokens. Issuance lives with the account
// service; GenerateAccessToken exists for local tooling and tests.
type JWTService struct {
	signingKey []byte
}

func NewJWTService(signingKey string) *JWTService {
	return &JWTService{signingKey: []byte(signingKey)}
}

func (s *JWTService) GenerateAccessToken(userID int64, email string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeForbidden, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeForbidden, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeForbidden, "invalid token claims")
	}
	if claims.UserID <= 0 {
		return nil, dErrors.New(dErrors.CodeForbidden, "token carries no user id")
	}

	return claims, nil
}
