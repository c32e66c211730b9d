package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"tipchain/config"
	"tipchain/crypto"
	"tipchain/observability/logging"
)

// FaucetScope must be present in the bearer token's scope claim.
const FaucetScope = "faucet"

var (
	errMissingBearer  = errors.New("missing bearer token")
	errInvalidToken   = errors.New("invalid token")
	errMissingScope   = errors.New("insufficient scope")
	errFaucetDisabled = errors.New("faucet disabled")
)

type faucetAuth struct {
	enabled   bool
	secret    []byte
	issuer    string
	maxAmount uint64
	clockSkew time.Duration
}

func newFaucetAuth(cfg config.Faucet) *faucetAuth {
	return &faucetAuth{
		enabled:   cfg.Enabled,
		secret:    []byte(strings.TrimSpace(cfg.JWTSecret)),
		issuer:    strings.TrimSpace(cfg.Issuer),
		maxAmount: cfg.MaxAmount,
		clockSkew: 2 * time.Minute,
	}
}

func (a *faucetAuth) authorize(r *http.Request) error {
	if !a.enabled {
		return errFaucetDisabled
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return errMissingBearer
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		slog.Default().Debug("faucet token rejected",
			logging.MaskField("token", logging.MaskToken(tokenString)),
			slog.Any("error", err))
		return errInvalidToken
	}
	if a.issuer != "" {
		if iss, _ := claims.GetIssuer(); iss != a.issuer {
			return errInvalidToken
		}
	}
	if !hasScope(extractScopes(claims), FaucetScope) {
		return errMissingScope
	}
	return nil
}

func (a *faucetAuth) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.clockSkew), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

// IssueFaucetToken mints an HS256 token carrying the faucet scope. Operators
// use it to hand out faucet access.
func IssueFaucetToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": FaucetScope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Server) handleRequestAirdrop(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if err := s.faucet.authorize(r); err != nil {
		switch {
		case errors.Is(err, errFaucetDisabled):
			writeError(w, http.StatusForbidden, req.ID, codeFaucetDisabled, err.Error(), nil)
			return codeFaucetDisabled
		case errors.Is(err, errMissingScope):
			s.metrics.RecordThrottle("forbidden")
			writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
			return codeUnauthorized
		default:
			s.metrics.RecordThrottle("unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
			return codeUnauthorized
		}
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return codeInvalidParams
	}
	var params AirdropParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return codeInvalidParams
	}
	addr, err := decodeAddressParam("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return codeInvalidParams
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return codeInvalidParams
	}
	if amount > s.faucet.maxAmount {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount exceeds faucet limit", s.faucet.maxAmount)
		return codeInvalidParams
	}
	account, err := s.node.Airdrop(r.Context(), addr, amount)
	if err != nil {
		return s.writeLedgerError(w, req.ID, err)
	}
	writeResult(w, req.ID, BalanceResult{
		Address: crypto.FormatAddress(addr),
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
	return 0
}

func extractScopes(claims jwt.MapClaims) []string {
	switch v := claims["scope"].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScope(scopes []string, required string) bool {
	for _, scope := range scopes {
		if scope == required {
			return true
		}
	}
	return false
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
