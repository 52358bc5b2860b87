package jwttoken

import (
	"waterlily/internal/platform/middleware"
)

// JWTServiceAdapter exposes JWTService as a middleware.JWTValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		JTI:    claims.ID,
	}, nil
}
