package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"metanode/core/genesis"
	"metanode/crypto"
	"metanode/observability/logging"
)

const (
	defaultIssuer = "metanode"
	clockSkew     = time.Minute
)

var errAuthDisabled = errors.New("RPC authentication secret not configured")

// authenticator resolves the calling account from an HS256 bearer token whose
// subject is the caller's bech32 address.
type authenticator struct {
	secret []byte
	issuer string
}

func newAuthenticator(secret []byte, issuer string) *authenticator {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &authenticator{secret: append([]byte(nil), secret...), issuer: issuer}
}

func (a *authenticator) caller(r *http.Request) (crypto.Address, error) {
	if len(a.secret) == 0 {
		return crypto.Address{}, errAuthDisabled
	}
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return crypto.Address{}, errors.New("missing bearer token")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(clockSkew), jwt.WithIssuer(a.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return crypto.Address{}, err
	}
	if !token.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	addr, err := genesis.ParseBech32Account(claims.Subject)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid token subject: %w", err)
	}
	return addr, nil
}

// IssueToken signs a caller token for subject valid for ttl.
func IssueToken(secret []byte, issuer string, subject crypto.Address, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errAuthDisabled
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	if subject.IsZero() {
		return "", fmt.Errorf("token subject required")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type authedHandler func(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller crypto.Address)

// authed resolves the caller and hands it to next. The caller is never taken
// from request parameters.
func (s *Server) authed(w http.ResponseWriter, r *http.Request, req *RPCRequest, next authedHandler) {
	caller, err := s.auth.caller(r)
	if err != nil {
		s.logger.Debug("rpc auth rejected",
			"method", req.Method,
			"authorization", logging.MaskBearer(r.Header.Get("Authorization")),
			"error", err)
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", err.Error())
		return
	}
	next(w, r, req, caller)
}
