// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/onfeat/fetchcore/pkg/log"
)

// jwtContextKey namespaces context.WithValue keys this package installs.
type jwtContextKey struct{}

// requireBearer is a gorilla/mux middleware enforcing an HMAC-signed
// (HS256, HS384 or HS512) bearer token, reduced from the teacher's full
// ed25519 + cross-login JWT authenticator to service-to-service auth only — see DESIGN.md for why
// the user/session/LDAP/OIDC pieces of that authenticator are not carried
// over into a service with no end-user directory of its own.
func requireBearer(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(rw, fmt.Errorf("missing bearer token"))
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				unauthorized(rw, err)
				return
			}

			ctx := context.WithValue(r.Context(), jwtContextKey{}, claims)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func unauthorized(rw http.ResponseWriter, err error) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusUnauthorized)
	if encErr := json.NewEncoder(rw).Encode(map[string]string{
		"status": http.StatusText(http.StatusUnauthorized),
		"error":  errString(err),
	}); encErr != nil {
		log.Warnf("httpapi: writing unauthorized response: %v", encErr)
	}
}

func errString(err error) string {
	if err == nil {
		return "invalid token"
	}
	return err.Error()
}
