package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
)

var (
	jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience")
	business   = id.BusinessRef("B1")
	expiresIn  = time.Hour
)

func Test_GenerateSubmitterToken(t *testing.T) {
	token, err := jwtService.GenerateSubmitterToken(business, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, string(id.TypeBusiness), claims.ParticipantType)
	assert.Equal(t, "B1", claims.ParticipantID)
	assert.Equal(t, business.String(), claims.Subject)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)

	submitter, err := claims.Submitter()
	require.NoError(t, err)
	assert.Equal(t, business, submitter)
}

func Test_GenerateSubmitterToken_RequiresParticipant(t *testing.T) {
	_, err := jwtService.GenerateSubmitterToken(id.Ref{}, expiresIn)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateSubmitterToken(business, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", err.(*dErrors.Error).Message)
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "other-audience")
	token, err := other.GenerateSubmitterToken(business, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("another-key", "test-issuer", "test-audience")
	token, err := other.GenerateSubmitterToken(business, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Adapter_RejectsNonParticipantTokens(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ParticipantType: string(id.TypeProposition),
		ParticipantID:   "1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	adapter := NewJWTServiceAdapter(jwtService)
	_, err = adapter.ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Adapter_MapsSubmitter(t *testing.T) {
	token, err := jwtService.GenerateSubmitterToken(id.MultipassUserRef("U1"), expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.MultipassUserRef("U1"), claims.Submitter)
	assert.NotEmpty(t, claims.TokenID)
}
