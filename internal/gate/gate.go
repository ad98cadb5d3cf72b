// Package gate implements the shared-secret access gate.
//
// The gate keeps casual visitors out of a deployment. It has no accounts
// and no lockout.
package gate

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashureev/mobilecoder/internal/api"
	"github.com/ashureev/mobilecoder/internal/identity"
	"github.com/ashureev/mobilecoder/internal/metrics"
)

const (
	CookieName = "mobilecoder_auth"
	DefaultKey = "lxpsaicbvewpo"
	issuer     = "mobilecoder"
	// maxCookieAge is the longest lifetime browsers honor for a cookie.
	maxCookieAge = 400 * 24 * time.Hour
)

// Config configures a Gate.
type Config struct {
	// Key is the plain shared secret. Ignored when KeyBcrypt is set.
	Key string
	// KeyBcrypt is a bcrypt hash of the shared secret.
	KeyBcrypt string
	// Secret signs admission tokens. Empty means a random per-process secret.
	Secret string
	// TTL bounds token lifetime. Zero means tokens never expire.
	TTL    time.Duration
	Secure bool
}

// Gate checks the shared secret and remembers admitted devices in a signed cookie.
type Gate struct {
	key    []byte
	hash   []byte
	secret []byte
	ttl    time.Duration
	secure bool
}

// Claims is the admission token payload. Subject is the device id.
type Claims struct {
	jwt.RegisteredClaims
}

// New creates a gate from cfg.
func New(cfg Config) (*Gate, error) {
	g := &Gate{ttl: cfg.TTL, secure: cfg.Secure}
	switch {
	case cfg.KeyBcrypt != "":
		if _, err := bcrypt.Cost([]byte(cfg.KeyBcrypt)); err != nil {
			return nil, fmt.Errorf("invalid ACCESS_KEY_BCRYPT: %w", err)
		}
		g.hash = []byte(cfg.KeyBcrypt)
	case cfg.Key != "":
		g.key = []byte(cfg.Key)
	default:
		g.key = []byte(DefaultKey)
	}

	if cfg.Secret != "" {
		g.secret = []byte(cfg.Secret)
	} else {
		g.secret = make([]byte, 32)
		if _, err := rand.Read(g.secret); err != nil {
			return nil, fmt.Errorf("generate auth secret: %w", err)
		}
	}
	return g, nil
}

// Check compares input with the shared secret.
func (g *Gate) Check(input string) bool {
	if g.hash != nil {
		return bcrypt.CompareHashAndPassword(g.hash, []byte(input)) == nil
	}
	return subtle.ConstantTimeCompare(g.key, []byte(input)) == 1
}

// Token signs an admission token for deviceID.
func (g *Gate) Token(deviceID string, now time.Time) (string, error) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  deviceID,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if g.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(g.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// Issue sets the admission cookie for deviceID.
func (g *Gate) Issue(w http.ResponseWriter, deviceID string) error {
	token, err := g.Token(deviceID, time.Now())
	if err != nil {
		return fmt.Errorf("sign admission token: %w", err)
	}
	age := maxCookieAge
	if g.ttl > 0 && g.ttl < age {
		age = g.ttl
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(age.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   g.secure,
	})
	return nil
}

// Verify parses token and returns its claims.
func (g *Gate) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Admitted reports whether r carries a valid admission token for its device.
func (g *Gate) Admitted(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	claims, err := g.Verify(c.Value)
	if err != nil {
		return false
	}
	device := identity.DeviceIDFromContext(r.Context())
	return device == "" || claims.Subject == device
}

// Middleware rejects requests that have not passed the gate.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Admitted(r) {
			api.Error(w, http.StatusUnauthorized, "locked")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type unlockRequest struct {
	Key string `json:"key"`
}

type statusResponse struct {
	Admitted bool `json:"admitted"`
}

// HandleStatus handles GET /api/auth.
func (g *Gate) HandleStatus(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, statusResponse{Admitted: g.Admitted(r)})
}

// HandleUnlock handles POST /api/auth.
func (g *Gate) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<10)
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok := g.Check(req.Key)
	metrics.RecordGateAttempt(ok)
	if !ok {
		slog.Info("Access key rejected", "ip", identity.IPFromRequest(r))
		api.Error(w, http.StatusUnauthorized, "invalid_key")
		return
	}

	if err := g.Issue(w, identity.DeviceIDFromContext(r.Context())); err != nil {
		slog.Error("Failed to issue admission cookie", "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	api.JSON(w, http.StatusOK, statusResponse{Admitted: true})
}

// RegisterRoutes registers the gate endpoints. They must stay outside Middleware.
func (g *Gate) RegisterRoutes(r chi.Router) {
	r.Get("/api/auth", g.HandleStatus)
	r.Post("/api/auth", g.HandleUnlock)
}
