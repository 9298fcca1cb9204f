package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
)

// Claims represents the JWT claims for submitter tokens. The token names the
// participant on whose behalf transactions are submitted.
type Claims struct {
	ParticipantType string `json:"participant_type"`
	ParticipantID   string `json:"participant_id"`
	jwt.RegisteredClaims
}

// Submitter returns the participant reference carried by the token.
func (c *Claims) Submitter() (id.Ref, error) {
	t := id.EntityType(c.ParticipantType)
	if t != id.TypeBusiness && t != id.TypeMultipassUser {
		return id.Ref{}, dErrors.New(dErrors.CodeUnauthorized, "token does not name a participant")
	}
	ref, err := id.ParseRef(c.ParticipantID, t)
	if err != nil {
		return id.Ref{}, dErrors.New(dErrors.CodeUnauthorized, "invalid participant in token")
	}
	return ref, nil
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// GenerateSubmitterToken issues a token for participant valid for expiresIn.
func (s *JWTService) GenerateSubmitterToken(participant id.Ref, expiresIn time.Duration) (string, error) {
	if participant.IsZero() {
		return "", dErrors.New(dErrors.CodeValidation, "participant is required")
	}
	now := s.now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ParticipantType: string(participant.Type),
		ParticipantID:   participant.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participant.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
