package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

// AppJWTSource exchanges a GitHub App identity (app id + RSA private key +
// installation id) for a short-lived installation token. Configured through
// PUSHGATE_APP_ID, PUSHGATE_APP_PRIVATE_KEY (PEM content or a file path)
// and PUSHGATE_APP_INSTALLATION_ID.
type AppJWTSource struct {
	APIURL string

	// now is replaceable for tests.
	now func() time.Time
}

func (s *AppJWTSource) Name() Source { return SourceAppJWT }

func (s *AppJWTSource) Token(ctx context.Context) (string, error) {
	appID := os.Getenv("PUSHGATE_APP_ID")
	keyMaterial := os.Getenv("PUSHGATE_APP_PRIVATE_KEY")
	installationStr := os.Getenv("PUSHGATE_APP_INSTALLATION_ID")
	if appID == "" || keyMaterial == "" || installationStr == "" {
		return "", nil
	}

	installationID, err := strconv.ParseInt(installationStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid PUSHGATE_APP_INSTALLATION_ID: %w", err)
	}

	key, err := loadPrivateKey(keyMaterial)
	if err != nil {
		return "", err
	}

	jwt, err := s.signAppJWT(appID, key)
	if err != nil {
		return "", err
	}

	client := github.NewClient(nil).WithAuthToken(jwt)
	if s.APIURL != "" && !strings.HasPrefix(s.APIURL, "https://api.github.com") {
		client, err = client.WithEnterpriseURLs(s.APIURL, s.APIURL)
		if err != nil {
			return "", fmt.Errorf("invalid API URL for app auth: %w", err)
		}
	}

	installToken, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("installation token exchange failed: %w", err)
	}
	return installToken.GetToken(), nil
}

// signAppJWT produces the RS256 app JWT GitHub expects: issued slightly in
// the past to absorb clock skew, valid for at most ten minutes.
func (s *AppJWTSource) signAppJWT(appID string, key *rsa.PrivateKey) (string, error) {
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]any{
		"iat": now.Add(-60 * time.Second).Unix(),
		"exp": now.Add(9 * time.Minute).Unix(),
		"iss": appID,
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT claims: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign app JWT: %w", err)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// loadPrivateKey accepts either inline PEM content or a path to a PEM file.
func loadPrivateKey(material string) (*rsa.PrivateKey, error) {
	data := []byte(material)
	if !strings.Contains(material, "-----BEGIN") {
		fileData, err := os.ReadFile(material)
		if err != nil {
			return nil, fmt.Errorf("failed to read app private key file: %w", err)
		}
		data = fileData
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("app private key is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse app private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("app private key is not RSA")
	}
	return key, nil
}
