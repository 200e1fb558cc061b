// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestRequireBearer_ValidTokenPassesThrough(t *testing.T) {
	secret := []byte("s3cret")
	called := false
	handler := requireBearer(secret)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		called = true
		rw.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, secret, jwt.MapClaims{"sub": "svc", "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/v1/fetch/groupbys", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()

	handler.ServeHTTP(rw, req)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rw.Code)
}

func TestRequireBearer_MissingHeaderIsUnauthorized(t *testing.T) {
	handler := requireBearer([]byte("secret"))(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler should never run without a bearer token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/fetch/groupbys", nil)
	rw := httptest.NewRecorder()
	handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestRequireBearer_WrongSecretIsUnauthorized(t *testing.T) {
	handler := requireBearer([]byte("correct-secret"))(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler should never run with a token signed by the wrong secret")
	}))

	token := signToken(t, []byte("wrong-secret"), jwt.MapClaims{"sub": "svc"})
	req := httptest.NewRequest(http.MethodGet, "/v1/fetch/groupbys", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()

	handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestRequireBearer_NonHMACSigningMethodIsRejected(t *testing.T) {
	handler := requireBearer([]byte("secret"))(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		t.Fatal("inner handler should never run for a non-HMAC token")
	}))

	// alg=none is never accepted regardless of secret.
	noneToken := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "svc"})
	signed, err := noneToken.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/fetch/groupbys", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rw := httptest.NewRecorder()

	handler.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
}
