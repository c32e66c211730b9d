package rpc

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func issueToken(secret, scope string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   "tipchain",
		"scope": scope,
		"exp":   time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(secret))
}
