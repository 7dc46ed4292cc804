package social

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://issuer.example.com"

func newTestOpenID(t *testing.T) (*openID, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	o := newOpenID("", testIssuer, "my-client", http.DefaultClient)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	o.verifier = oidc.NewVerifier(testIssuer, keySet, o.oidcConfig())
	return o, key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestOpenID_UserData(t *testing.T) {
	o, key := newTestOpenID(t)
	assert.Equal(t, BackendOIDC, o.Name())

	tok := signIDToken(t, key, jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                "my-client",
		"sub":                "oidc-user",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"iat":                time.Now().Unix(),
		"email":              "dora@example.com",
		"preferred_username": "dora",
		"given_name":         "Dora",
	})

	id, err := o.UserData(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "oidc-user", id.UID)
	assert.Equal(t, "dora@example.com", id.Email)
	assert.Equal(t, "dora", id.Username)
	assert.Equal(t, "Dora", id.FirstName)
	assert.Equal(t, "oidc-user", id.Extra["sub"])
}

func TestOpenID_Rejects(t *testing.T) {
	o, key := newTestOpenID(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	valid := jwt.MapClaims{"iss": testIssuer, "aud": "my-client", "sub": "x", "exp": time.Now().Add(time.Hour).Unix()}
	cases := map[string]string{
		"wrong audience": signIDToken(t, key, jwt.MapClaims{"iss": testIssuer, "aud": "other", "sub": "x", "exp": time.Now().Add(time.Hour).Unix()}),
		"expired":        signIDToken(t, key, jwt.MapClaims{"iss": testIssuer, "aud": "my-client", "sub": "x", "exp": time.Now().Add(-time.Hour).Unix()}),
		"wrong key":      signIDToken(t, other, valid),
		"garbage":        "not-a-jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := o.UserData(context.Background(), tok)
			var failure *AuthFailure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, "invalid id token", failure.Reason)
		})
	}
}

func TestOpenID_DiscoveryFailure(t *testing.T) {
	client := &http.Client{Transport: rtFunc(func(r *http.Request) (*http.Response, error) {
		return newRawResponse(500, "down"), nil
	})}
	o := newOpenID("corp", testIssuer, "", client)
	assert.Equal(t, "corp", o.Name())

	_, err := o.UserData(context.Background(), "whatever")
	var failure *AuthFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "failed to discover issuer", failure.Reason)
	assert.Nil(t, o.verifier)
}
