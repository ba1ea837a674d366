package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyStaffToken(t *testing.T) {
	svc := NewJWTService("jwt-test-secret")

	token, err := svc.SignStaffToken(5, RoleStaff, 0)
	require.NoError(t, err)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, claims.Role)
	id, err := claims.ActorID()
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.NotEmpty(t, claims.ID)
}

func TestSignStaffToken_rejectsBadInput(t *testing.T) {
	svc := NewJWTService("jwt-test-secret")

	_, err := svc.SignStaffToken(0, RoleStaff, 0)
	assert.Error(t, err)

	_, err = svc.SignStaffToken(1, Role("owner"), 0)
	assert.Error(t, err)
}

func TestVerifyToken_wrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a").SignStaffToken(1, RoleAdmin, 0)
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_expired(t *testing.T) {
	svc := NewJWTService("jwt-test-secret")
	claims := &StaffClaims{
		Role: RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("jwt-test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_missingExpiry(t *testing.T) {
	svc := NewJWTService("jwt-test-secret")
	claims := &StaffClaims{Role: RoleStaff, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("jwt-test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_badSubject(t *testing.T) {
	svc := NewJWTService("jwt-test-secret")
	claims := &StaffClaims{
		Role: RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-number",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("jwt-test-secret"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(token)
	assert.Error(t, err)
}
