package auth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenLength   = 30
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces opaque token values
type Generator interface {
	Generate() (string, error)
}

type randomGenerator struct{}

type jwtGenerator struct {
	secret []byte
}

// NewGenerator returns the random generator, or the JWT generator when activateJWT is set
func NewGenerator(activateJWT bool, secretKey string) (Generator, error) {
	if !activateJWT {
		return randomGenerator{}, nil
	}
	if secretKey == "" {
		return nil, errors.New("activate_jwt requires jwt.secret_key")
	}
	return &jwtGenerator{secret: []byte(secretKey)}, nil
}

func (randomGenerator) Generate() (string, error) {
	return randomToken(tokenLength)
}

func (g *jwtGenerator) Generate() (string, error) {
	value, err := randomToken(tokenLength)
	if err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"token": value}).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// randomToken draws n characters of tokenAlphabet without modulo bias
func randomToken(n int) (string, error) {
	const limit = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
