package services

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/codyseavey/kaiwa/internal/metrics"
	"github.com/codyseavey/kaiwa/internal/prompt"
)

const (
	// Google Cloud Translation API v3 endpoint
	translationAPIURL = "https://translation.googleapis.com/v3/projects/%s/locations/global:translateText"

	translationScope   = "https://www.googleapis.com/auth/cloud-translation"
	translationTimeout = 10 * time.Second
)

// CloudTranslationService calls the Google Cloud Translation API with a
// service account. It is the translation-mode fallback when Gemini fails.
type CloudTranslationService struct {
	projectID   string
	endpoint    string
	accessToken string
	tokenExpiry time.Time
	httpClient  *http.Client
	credentials *googleCredentials
	privateKey  *rsa.PrivateKey
	enabled     bool
	mu          sync.Mutex // Protects token refresh
}

// googleCredentials represents a Google Cloud service account JSON key
type googleCredentials struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

type translateRequest struct {
	SourceLanguageCode string   `json:"sourceLanguageCode,omitempty"`
	TargetLanguageCode string   `json:"targetLanguageCode"`
	Contents           []string `json:"contents"`
	MimeType           string   `json:"mimeType"`
}

type translateResponse struct {
	Translations []struct {
		TranslatedText       string `json:"translatedText"`
		DetectedLanguageCode string `json:"detectedLanguageCode,omitempty"`
	} `json:"translations"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

// serviceAccountClaims is the assertion exchanged for an access token.
type serviceAccountClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// NewCloudTranslationService creates the service from a service account key
// file. An empty path or an unusable file leaves the service disabled.
func NewCloudTranslationService(credPath string) *CloudTranslationService {
	svc := &CloudTranslationService{
		endpoint:   translationAPIURL,
		httpClient: &http.Client{Timeout: translationTimeout},
	}

	if credPath == "" {
		infoLog("Cloud Translation: GOOGLE_APPLICATION_CREDENTIALS not set, fallback disabled")
		return svc
	}

	data, err := os.ReadFile(credPath)
	if err != nil {
		infoLog("Cloud Translation: failed to read credentials file %s: %v", credPath, err)
		return svc
	}

	var creds googleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		infoLog("Cloud Translation: failed to parse credentials: %v", err)
		return svc
	}

	if creds.ProjectID == "" || creds.PrivateKey == "" || creds.ClientEmail == "" || creds.TokenURI == "" {
		infoLog("Cloud Translation: credentials file missing required fields")
		return svc
	}

	// Accepts PKCS1 and PKCS8 PEM blocks
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		infoLog("Cloud Translation: failed to parse private key: %v", err)
		return svc
	}

	svc.credentials = &creds
	svc.privateKey = key
	svc.projectID = creds.ProjectID
	svc.enabled = true

	infoLog("Cloud Translation: enabled for project %s", svc.projectID)
	return svc
}

// IsEnabled returns whether the translation service is available
func (s *CloudTranslationService) IsEnabled() bool {
	return s.enabled
}

// Generate translates the prompt's message from Japanese to English and
// returns it rendered in the prompt's output shape.
func (s *CloudTranslationService) Generate(ctx context.Context, p prompt.Prompt) (string, error) {
	translated, err := s.Translate(ctx, p.Message, "ja", "en")
	if err != nil {
		return "", err
	}
	return p.Shape.Render(translated), nil
}

// Source names Cloud Translation results in the cache and metrics.
func (s *CloudTranslationService) Source() string {
	return SourceGoogleAPI
}

// Translate translates text from source language to target language.
// If sourceLang is empty, the API will auto-detect the source language.
func (s *CloudTranslationService) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if !s.enabled {
		return "", ErrGeneratorDisabled
	}

	if text == "" {
		return "", nil
	}

	startTime := time.Now()

	token, err := s.ensureAccessToken(ctx)
	if err != nil {
		metrics.TranslationErrorsTotal.WithLabelValues("auth").Inc()
		return "", fmt.Errorf("failed to get access token: %w", err)
	}

	reqBody := translateRequest{
		SourceLanguageCode: sourceLang,
		TargetLanguageCode: targetLang,
		Contents:           []string{text},
		MimeType:           "text/plain",
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(s.endpoint, s.projectID), bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.TranslationErrorsTotal.WithLabelValues("network").Inc()
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.TranslationAPILatency.Observe(time.Since(startTime).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TranslationErrorsTotal.WithLabelValues("read").Inc()
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.TranslationErrorsTotal.WithLabelValues("api").Inc()
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result translateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.TranslationErrorsTotal.WithLabelValues("parse").Inc()
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error != nil {
		metrics.TranslationErrorsTotal.WithLabelValues("api").Inc()
		return "", fmt.Errorf("API error %d: %s", result.Error.Code, result.Error.Message)
	}

	if len(result.Translations) == 0 {
		metrics.TranslationErrorsTotal.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("no translations returned")
	}

	return result.Translations[0].TranslatedText, nil
}

// ensureAccessToken returns a cached access token or exchanges a freshly
// signed service account assertion for a new one.
func (s *CloudTranslationService) ensureAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Reuse the token until one minute before expiry
	if s.accessToken != "" && time.Now().Add(time.Minute).Before(s.tokenExpiry) {
		return s.accessToken, nil
	}

	assertion, err := s.signAssertion(time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.credentials.TokenURI, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.Error != "" {
		return "", fmt.Errorf("token error: %s - %s", tokenResp.Error, tokenResp.ErrorDesc)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	s.accessToken = tokenResp.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return s.accessToken, nil
}

// signAssertion creates an RS256 JWT for the OAuth2 jwt-bearer grant.
func (s *CloudTranslationService) signAssertion(now time.Time) (string, error) {
	claims := serviceAccountClaims{
		Scope: translationScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.credentials.ClientEmail,
			Subject:   s.credentials.ClientEmail,
			Audience:  jwt.ClaimStrings{s.credentials.TokenURI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.credentials.PrivateKeyID != "" {
		token.Header["kid"] = s.credentials.PrivateKeyID
	}
	return token.SignedString(s.privateKey)
}
