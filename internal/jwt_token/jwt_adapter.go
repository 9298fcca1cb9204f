package jwttoken

import (
	"cityledger/internal/platform/middleware"
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
	submitter, err := claims.Submitter()
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{Submitter: submitter, TokenID: claims.ID}, nil
}
