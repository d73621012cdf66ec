// Package credentialtest builds syntactically valid service-account
// documents for tests. The RSA key is generated once per test binary.
package credentialtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"sync"
	"testing"
)

var (
	keyOnce sync.Once
	keyPEM  string
	keyErr  error
)

// PrivateKeyPEM returns a PKCS#8 PEM-encoded RSA private key.
func PrivateKeyPEM(t testing.TB) string {
	t.Helper()
	keyOnce.Do(func() {
		var key *rsa.PrivateKey
		key, keyErr = rsa.GenerateKey(rand.Reader, 2048)
		if keyErr != nil {
			return
		}
		var der []byte
		der, keyErr = x509.MarshalPKCS8PrivateKey(key)
		if keyErr != nil {
			return
		}
		keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	})
	if keyErr != nil {
		t.Fatalf("credentialtest: generate key: %v", keyErr)
	}
	return keyPEM
}

// Document returns a complete service-account JSON document carrying a
// valid private key. Fields in overrides replace the generated values.
func Document(t testing.TB, overrides map[string]string) []byte {
	t.Helper()
	doc := map[string]string{
		"type":                        "service_account",
		"project_id":                  "secops-test",
		"private_key_id":              "0123456789abcdef",
		"private_key":                 PrivateKeyPEM(t),
		"client_email":                "mcp@secops-test.iam.gserviceaccount.com",
		"client_id":                   "100000000000000000001",
		"auth_uri":                    "https://accounts.google.com/o/oauth2/auth",
		"token_uri":                   "https://oauth2.googleapis.com/token",
		"auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
		"client_x509_cert_url":        "https://www.googleapis.com/robot/v1/metadata/x509/mcp",
		"universe_domain":             "googleapis.com",
	}
	for k, v := range overrides {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("credentialtest: encode document: %v", err)
	}
	return data
}

// EscapedDocument returns a [Document] whose private key newlines are
// written as literal backslash-n sequences, as produced by tooling that
// escapes the key twice.
func EscapedDocument(t testing.TB) []byte {
	t.Helper()
	return Document(t, map[string]string{
		"private_key": strings.ReplaceAll(PrivateKeyPEM(t), "\n", `\n`),
	})
}
