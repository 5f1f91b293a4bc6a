package session

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stackapp/auth-service/internal/ports"
)

// VerifierConfig identifies the delegated identity provider whose session
// tokens this service accepts.
type VerifierConfig struct {
	IssuerURL    string
	DiscoveryURL string
	JWKSURI      string
	ClientID     string
	HTTPClient   *http.Client
}

// IdentityVerifier validates the provider's session tokens (ID tokens)
// against the provider's published signing keys. Discovery and JWKS results
// are cached briefly; validation itself is local.
type IdentityVerifier struct {
	cfg        VerifierConfig
	httpClient *http.Client

	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	keysFetched time.Time
	resolvedIss string
	keyCacheTTL time.Duration
}

func NewIdentityVerifier(cfg VerifierConfig) *IdentityVerifier {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &IdentityVerifier{
		cfg:         cfg,
		httpClient:  httpClient,
		keyCacheTTL: 15 * time.Minute,
	}
}

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// VerifyIDToken checks signature, issuer, audience, and expiry of a provider
// session token and maps its claims into a ProviderIdentity. Known fields
// are copied explicitly; every other claim rides in the Extra side channel.
func (v *IdentityVerifier) VerifyIDToken(ctx context.Context, raw string) (*ports.ProviderIdentity, error) {
	keySet, issuer, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(token *jwt.Token) (any, error) {
			if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			kid, _ := token.Header["kid"].(string)
			if strings.TrimSpace(kid) != "" {
				key, ok := keySet[kid]
				if !ok {
					return nil, fmt.Errorf("unknown key id: %s", kid)
				}
				return key, nil
			}
			if len(keySet) == 1 {
				for _, key := range keySet {
					return key, nil
				}
			}
			return nil, fmt.Errorf("missing key id")
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.ClientID),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("validate session token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	subject := stringClaim(claims, "sub")
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("session token missing sub")
	}

	identity := &ports.ProviderIdentity{
		Subject:       subject,
		Email:         strings.ToLower(strings.TrimSpace(stringClaim(claims, "email"))),
		WalletAddress: strings.TrimSpace(stringClaim(claims, "wallet_address")),
		Extra:         make(map[string]any),
	}
	if identity.WalletAddress == "" {
		identity.WalletAddress = strings.TrimSpace(stringClaim(claims, "address"))
	}
	for key, value := range claims {
		switch key {
		case "sub", "email", "wallet_address", "address",
			"iss", "aud", "exp", "iat", "nbf", "nonce":
			continue
		}
		identity.Extra[key] = value
	}
	return identity, nil
}

func (v *IdentityVerifier) keySet(ctx context.Context) (map[string]*rsa.PublicKey, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil && time.Since(v.keysFetched) < v.keyCacheTTL {
		return v.keys, v.resolvedIss, nil
	}

	jwksURI := strings.TrimSpace(v.cfg.JWKSURI)
	issuer := strings.TrimSpace(v.cfg.IssuerURL)
	if jwksURI == "" {
		doc, err := v.discover(ctx)
		if err != nil {
			return nil, "", err
		}
		jwksURI = doc.JWKSURI
		if strings.TrimSpace(doc.Issuer) != "" {
			issuer = strings.TrimSpace(doc.Issuer)
		}
	}

	keys, err := v.fetchJWKS(ctx, jwksURI)
	if err != nil {
		return nil, "", err
	}
	v.keys = keys
	v.keysFetched = time.Now()
	v.resolvedIss = issuer
	return keys, issuer, nil
}

func (v *IdentityVerifier) discover(ctx context.Context) (discoveryDocument, error) {
	discoveryURL := strings.TrimSpace(v.cfg.DiscoveryURL)
	if discoveryURL == "" {
		discoveryURL = strings.TrimRight(strings.TrimSpace(v.cfg.IssuerURL), "/") + "/.well-known/openid-configuration"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return discoveryDocument{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return discoveryDocument{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return discoveryDocument{}, fmt.Errorf("provider discovery failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return discoveryDocument{}, fmt.Errorf("decode discovery document: %w", err)
	}
	if strings.TrimSpace(v.cfg.IssuerURL) != "" && strings.TrimSpace(doc.Issuer) != "" &&
		strings.TrimSpace(doc.Issuer) != strings.TrimSpace(v.cfg.IssuerURL) {
		return discoveryDocument{}, fmt.Errorf("issuer mismatch: got %s expected %s", doc.Issuer, v.cfg.IssuerURL)
	}
	if strings.TrimSpace(doc.JWKSURI) == "" {
		return discoveryDocument{}, fmt.Errorf("discovery document missing jwks_uri")
	}
	return doc, nil
}

func (v *IdentityVerifier) fetchJWKS(ctx context.Context, jwksURI string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("provider jwks fetch failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey)
	for i, key := range doc.Keys {
		if strings.ToUpper(strings.TrimSpace(key.Kty)) != "RSA" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(key.N))
		if err != nil {
			return nil, fmt.Errorf("decode jwks n: %w", err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(key.E))
		if err != nil {
			return nil, fmt.Errorf("decode jwks e: %w", err)
		}
		eBig := new(big.Int).SetBytes(eBytes)
		if !eBig.IsInt64() {
			return nil, fmt.Errorf("invalid jwks exponent for key %s", key.Kid)
		}
		eValue := int(eBig.Int64())
		if eValue <= 1 {
			return nil, fmt.Errorf("invalid jwks exponent for key %s", key.Kid)
		}

		kid := strings.TrimSpace(key.Kid)
		if kid == "" {
			kid = fmt.Sprintf("key-%d", i)
		}
		keys[kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: eValue,
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no RSA keys found in jwks")
	}
	return keys, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
