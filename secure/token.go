package secure

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dcavalli/fidelgate/internal/util"
)

// Role identifies the privilege level carried by a session token.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// DefaultSessionTTL is the sliding session window applied when no explicit
// TTL is configured.
const DefaultSessionTTL = 30 * time.Minute

// Claims is the payload of a session token. Timestamps are epoch
// milliseconds.
type Claims struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

const (
	tokenAlg = "HS256"
	tokenTyp = "FGT"
)

// ErrTokenSigning is returned when a token cannot be issued. This is the one
// failure the login flow treats as fatal rather than degrading.
var ErrTokenSigning = errors.New("signing session token failed")

// TokenService issues and verifies compact signed session tokens of the form
// base64url(header).base64url(payload).hexHMAC.
type TokenService struct {
	cipher *Cipher
	now    func() time.Time
}

// NewTokenService creates a TokenService signing with the given cipher's key.
func NewTokenService(cipher *Cipher) *TokenService {
	return &TokenService{cipher: cipher, now: time.Now}
}

// Issue builds and signs a token for the subject with the given role and TTL.
func (s *TokenService) Issue(id string, role Role, ttl time.Duration) (string, error) {
	header, err := json.Marshal(tokenHeader{Alg: tokenAlg, Typ: tokenTyp})
	if err != nil {
		return "", ErrTokenSigning
	}
	now := s.now()
	payload, err := json.Marshal(Claims{
		ID:        id,
		Role:      role,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	})
	if err != nil {
		return "", ErrTokenSigning
	}

	signingInput := util.Base64URLEncode(header) + "." + util.Base64URLEncode(payload)
	signature := s.cipher.Sign(signingInput)
	if signature == "" {
		return "", ErrTokenSigning
	}
	return signingInput + "." + signature, nil
}

// Verify checks a token's structure, signature, and expiry. Returns the
// claims on success and nil on any failure; it never returns an error.
func (s *TokenService) Verify(token string) *Claims {
	claims := s.decode(token)
	if claims == nil || claims.ExpiresAt <= s.now().UnixMilli() {
		return nil
	}
	return claims
}

// decode checks structure, signature, and header and returns the claims
// without enforcing the embedded expiry. The session authority uses this for
// persisted records, where the sliding SessionRecord.ExpiresAt is the
// authoritative deadline; raw tokens presented from outside go through
// Verify.
func (s *TokenService) decode(token string) *Claims {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}

	signingInput := parts[0] + "." + parts[1]
	expected := s.cipher.Sign(signingInput)
	if expected == "" || !util.HMACEqual([]byte(expected), []byte(parts[2])) {
		return nil
	}

	headerJSON, err := util.Base64URLDecode(parts[0])
	if err != nil {
		return nil
	}
	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != tokenAlg {
		return nil
	}

	payloadJSON, err := util.Base64URLDecode(parts[1])
	if err != nil {
		return nil
	}
	var claims Claims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return nil
	}
	return &claims
}
