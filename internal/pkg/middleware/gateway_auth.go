package middleware

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nusapay/qrisgate/app/repository"
	"github.com/nusapay/qrisgate/internal/pkg/env"
	"github.com/nusapay/qrisgate/internal/pkg/httpx"
	"github.com/nusapay/qrisgate/internal/pkg/merchantcontext"
	"github.com/nusapay/qrisgate/internal/pkg/security"
)

// GatewayAuthMiddleware authenticates signed gateway requests. The chain runs
// cheapest checks first and aborts on the first failure: API key, merchant
// status, IP allow-list, timestamp window, nonce uniqueness, HMAC signature.
func GatewayAuthMiddleware() fiber.Handler {
	signWindow := env.GetEnvDuration("SIGN_WINDOW", 60*time.Second)
	nonceTTL := env.GetEnvDuration("NONCE_TTL", 120*time.Second)

	return func(c *fiber.Ctx) error {
		apiKey := strings.TrimSpace(c.Get("X-Api-Key"))
		if apiKey == "" {
			return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingApiKey, "X-Api-Key header is required")
		}

		repos := repository.GetGlobalRepositories()

		hash := security.HashAPIKey(apiKey)
		creds, merchantEnv, err := repos.Credentials.GetByAPIKeyHash(hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeInvalidApiKey, "unknown API key")
			}
			log.Errorf("gateway auth: key lookup failed: %v", err)
			return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "key verification failed")
		}

		merchant, err := repos.Merchant.GetByID(creds.MerchantID)
		if err != nil {
			log.Errorf("gateway auth: merchant %s not loadable: %v", creds.MerchantID, err)
			return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "merchant lookup failed")
		}
		if !merchant.IsActive() {
			return httpx.Fail(c, fiber.StatusForbidden, httpx.CodeNotApproved, "merchant is not approved for gateway access")
		}

		if merchant.IPWhitelistEnabled {
			if !ipAllowed(clientIP(c), merchant.IPWhitelistEntries()) {
				return httpx.Fail(c, fiber.StatusForbidden, httpx.CodeIpNotAllowed, "client address is not on the allow-list")
			}
		}

		timestamp := strings.TrimSpace(c.Get("X-Timestamp"))
		nonce := strings.TrimSpace(c.Get("X-Nonce"))
		signature := strings.TrimSpace(c.Get("X-Signature"))
		if timestamp == "" || nonce == "" || signature == "" {
			return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeMissingSignatureHeaders, "X-Timestamp, X-Nonce and X-Signature headers are required")
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeInvalidTimestamp, "X-Timestamp must be unix seconds")
		}
		now := time.Now()
		skew := now.Unix() - ts
		if skew < 0 {
			skew = -skew
		}
		// The window boundary itself is accepted.
		if skew > int64(signWindow.Seconds()) {
			return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeRequestExpired, "request timestamp outside the signing window")
		}

		used, err := repos.Nonce.IsUsed(merchant.ID, nonce, now)
		if err != nil {
			log.Errorf("gateway auth: nonce check failed: %v", err)
			return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "nonce verification failed")
		}
		if used {
			return httpx.Fail(c, fiber.StatusConflict, httpx.CodeReplayDetected, "nonce was already used")
		}
		if err := repos.Nonce.MarkUsed(merchant.ID, nonce, now.Add(nonceTTL)); err != nil {
			// A concurrent request with the same nonce wins the insert race.
			if isDuplicateKey(err) {
				return httpx.Fail(c, fiber.StatusConflict, httpx.CodeReplayDetected, "nonce was already used")
			}
			log.Errorf("gateway auth: nonce store failed: %v", err)
			return httpx.Fail(c, fiber.StatusInternalServerError, httpx.CodeInternal, "nonce persistence failed")
		}

		signingSecret, _ := creds.SecretsFor(merchantEnv)
		if signingSecret == "" {
			return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeNoSigningSecret, "no signing secret for this environment")
		}

		pathWithQuery := c.Path()
		if qs := string(c.Request().URI().QueryString()); qs != "" {
			pathWithQuery += "?" + qs
		}
		canonical := security.CanonicalRequest(c.Method(), pathWithQuery, timestamp, nonce, c.Body())
		if !security.VerifyRequest(signingSecret, canonical, signature) {
			return httpx.Fail(c, fiber.StatusUnauthorized, httpx.CodeInvalidSignature, "signature verification failed")
		}

		merchantcontext.Store(c, merchant, merchantEnv)

		return c.Next()
	}
}

// clientIP resolves the caller address: first X-Forwarded-For value when
// present, else the connection peer. IPv4-mapped IPv6 addresses are unmapped.
func clientIP(c *fiber.Ctx) string {
	addr := c.IP()
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		addr = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if parsed := net.ParseIP(addr); parsed != nil {
		if v4 := parsed.To4(); v4 != nil {
			return v4.String()
		}
	}
	return addr
}

// ipAllowed matches the client address against the configured entries, each
// a single address or a CIDR block. An empty list never matches.
func ipAllowed(addr string, entries []string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			if network.Contains(ip) {
				return true
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return true
		}
	}
	return false
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "Duplicate entry")
}
