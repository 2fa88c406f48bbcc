package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"log"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/go-vitals/vitals/internal/authflow"
	"github.com/go-vitals/vitals/internal/credential"
	"github.com/go-vitals/vitals/internal/metrics"
)

// AuthHandler owns the OAuth login, callback and status endpoints for all
// configured providers.
type AuthHandler struct {
	orchs       map[string]*authflow.Orchestrator
	frontendURL string
	metrics     metrics.Recorder
}

// NewAuthHandler creates an AuthHandler over the configured orchestrators,
// keyed by provider name.
func NewAuthHandler(
	orchs map[string]*authflow.Orchestrator,
	frontendURL string,
	m metrics.Recorder,
) *AuthHandler {
	return &AuthHandler{
		orchs:       orchs,
		frontendURL: frontendURL,
		metrics:     m,
	}
}

// Login redirects the user to the provider's authorization page, storing a
// random CSRF state in the session for the callback to verify.
func (h *AuthHandler) Login(c *gin.Context) {
	provider := c.Param("provider")

	orch, exists := h.orchs[provider]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	state, err := generateRandomState(32)
	if err != nil {
		log.Printf("[Auth] Failed to generate state: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	session := sessions.Default(c)
	session.Set(stateKey(provider), state)
	if err := session.Save(); err != nil {
		log.Printf("[Auth] Failed to save session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, orch.Client().AuthCodeURL(state))
}

// Callback receives the OAuth redirect, exchanges the code for tokens and
// establishes the credential cookie.
func (h *AuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	orch, exists := h.orchs[provider]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "Code is required")
		return
	}

	// Verify CSRF state when the login flow seeded one. Callbacks without a
	// session state (e.g. a redirect initiated outside this server) are
	// accepted; a state that is present must match.
	session := sessions.Default(c)
	if saved := session.Get(stateKey(provider)); saved != nil {
		session.Delete(stateKey(provider))
		_ = session.Save()
		if savedState, ok := saved.(string); !ok || savedState != c.Query("state") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
			return
		}
	}

	rec, err := orch.Client().Exchange(c.Request.Context(), code)
	h.metrics.RecordCodeExchange(provider, err == nil)
	if err != nil {
		// Error detail stays server-side: exchange failures can carry
		// credential-adjacent information.
		log.Printf("[Auth] %s code exchange failed: %v", provider, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Internal Server Error",
		})
		return
	}

	if err := setCredentialCookie(c, orch, rec); err != nil {
		log.Printf("[Auth] Failed to encode %s cookie: %v", provider, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Internal Server Error",
		})
		return
	}

	c.Redirect(http.StatusFound, h.frontendURL)
}

// Status builds the status endpoint for one provider. It always answers
// 200 with a boolean flag; refresh failures surface as false, never as an
// error payload. extraKey optionally lifts an opaque field (e.g. Strava's
// athlete snapshot) out of the credential record into the response.
func (h *AuthHandler) Status(provider, statusKey, extraKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orch, exists := h.orchs[provider]
		if !exists {
			// Provider not configured on this deployment.
			c.JSON(http.StatusOK, gin.H{statusKey: false})
			return
		}

		out, err := orch.Check(c.Request.Context(), cookieValue(c, orch.Codec().Name))
		if err != nil && !out.Authed {
			// Absent cookie or failed refresh both mean "not authed" here.
			c.JSON(http.StatusOK, gin.H{statusKey: false})
			return
		}

		if out.Refreshed {
			if err := setCredentialCookie(c, orch, out.Record); err != nil {
				log.Printf("[Auth] Failed to encode %s cookie: %v", provider, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
				return
			}
		}

		resp := gin.H{statusKey: out.Authed}
		if extraKey != "" && out.Record != nil {
			if raw, ok := out.Record.Extra[extraKey]; ok {
				resp[extraKey] = raw
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

// cookieValue returns the raw (still URL-encoded) cookie value, or "" when
// the cookie is absent.
func cookieValue(c *gin.Context, name string) string {
	ck, err := c.Request.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// setCredentialCookie re-encodes a credential record onto the response.
func setCredentialCookie(
	c *gin.Context,
	orch *authflow.Orchestrator,
	rec *credential.Record,
) error {
	ck, err := orch.Codec().Encode(rec)
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, ck)
	return nil
}

func stateKey(provider string) string {
	return "oauth_state_" + provider
}

// generateRandomState generates a random state string for OAuth CSRF protection
func generateRandomState(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
