package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/go-vitals/vitals/internal/authflow"
	"github.com/go-vitals/vitals/internal/cache"
	"github.com/go-vitals/vitals/internal/credential"
	"github.com/go-vitals/vitals/internal/metrics"
	"github.com/go-vitals/vitals/internal/provider"
)

const (
	dateLayout = "2006-01-02"

	// detailFetchLimit bounds the fan-out concurrency for per-activity
	// detail calls.
	detailFetchLimit = 8
)

// ResourceHandler proxies authenticated resource requests to the providers,
// reusing or silently refreshing the cookie credential on each call.
type ResourceHandler struct {
	orchs    map[string]*authflow.Orchestrator
	cache    cache.Cache // nil when caching is disabled
	cacheTTL time.Duration
	metrics  metrics.Recorder
}

// NewResourceHandler creates a ResourceHandler. respCache may be nil to
// disable response caching.
func NewResourceHandler(
	orchs map[string]*authflow.Orchestrator,
	respCache cache.Cache,
	cacheTTL time.Duration,
	m metrics.Recorder,
) *ResourceHandler {
	return &ResourceHandler{
		orchs:    orchs,
		cache:    respCache,
		cacheTTL: cacheTTL,
		metrics:  m,
	}
}

// OuraResource builds a proxy handler for one Oura daily collection
// (sleep, readiness, tags). The provider's JSON body is relayed untouched.
func (h *ResourceHandler) OuraResource(resource, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		startDate, endDate, ok := dateRange(c)
		if !ok {
			return
		}

		rec, ok := h.authenticate(c, "oura", "Oura")
		if !ok {
			return
		}

		query := url.Values{
			"start_date": {startDate},
			"end_date":   {endDate},
		}

		if body, ok := h.cachedResponse(c, resource, rec.AccessToken, startDate, endDate); ok {
			c.Data(http.StatusOK, "application/json", body)
			return
		}

		body, ok := h.fetch(c, "oura", resource, rec.AccessToken, path, query)
		if !ok {
			return
		}

		h.storeResponse(c, resource, rec.AccessToken, startDate, endDate, body)
		c.Data(http.StatusOK, "application/json", body)
	}
}

// StravaActivities lists the athlete's activities in the date range and
// enriches each summary with a concurrently fetched detail record. A failed
// detail fetch degrades that record's detail field to null; it never fails
// the batch.
func (h *ResourceHandler) StravaActivities(c *gin.Context) {
	const resource = "activities"

	startDate, endDate, ok := dateRange(c)
	if !ok {
		return
	}

	rec, ok := h.authenticate(c, "strava", "Strava")
	if !ok {
		return
	}

	if body, ok := h.cachedResponse(c, resource, rec.AccessToken, startDate, endDate); ok {
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	// Strava filters by epoch seconds; end_date is inclusive.
	after, _ := time.Parse(dateLayout, startDate)
	before, _ := time.Parse(dateLayout, endDate)
	query := url.Values{
		"after":    {fmt.Sprintf("%d", after.Unix())},
		"before":   {fmt.Sprintf("%d", before.Add(24*time.Hour).Unix())},
		"per_page": {"100"},
	}

	listBody, ok := h.fetch(c, "strava", resource, rec.AccessToken, "/athlete/activities", query)
	if !ok {
		return
	}

	var activities []map[string]any
	if err := json.Unmarshal(listBody, &activities); err != nil {
		log.Printf("[Resources] Unexpected strava activities payload: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "invalid response from Strava"})
		return
	}

	h.attachActivityDetails(c, rec, activities)

	merged, err := json.Marshal(activities)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	h.storeResponse(c, resource, rec.AccessToken, startDate, endDate, merged)
	c.Data(http.StatusOK, "application/json", merged)
}

// attachActivityDetails fans out one detail fetch per activity. All fetches
// settle before the method returns; individual failures leave a nil detail.
func (h *ResourceHandler) attachActivityDetails(
	c *gin.Context,
	rec *credential.Record,
	activities []map[string]any,
) {
	client := h.orchs["strava"].Client()

	g := new(errgroup.Group)
	g.SetLimit(detailFetchLimit)

	for _, activity := range activities {
		activity := activity
		g.Go(func() error {
			id, ok := activityID(activity)
			if !ok {
				activity["detail"] = nil
				return nil
			}

			start := time.Now()
			body, err := client.Fetch(
				c.Request.Context(),
				rec.AccessToken,
				"/activities/"+id,
				nil,
			)
			h.metrics.RecordUpstreamRequest("strava", "activity_detail", fetchStatus(err), time.Since(start))
			if err != nil {
				log.Printf("[Resources] Detail fetch for activity %s failed: %v", id, err)
				activity["detail"] = nil
				return nil
			}

			activity["detail"] = json.RawMessage(body)
			return nil
		})
	}

	// Workers never return errors; the join is all-settle by construction.
	_ = g.Wait()
}

// authenticate resolves the provider credential for this request, silently
// refreshing it when expired. On failure it writes the response and
// returns ok=false.
func (h *ResourceHandler) authenticate(
	c *gin.Context,
	providerName, label string,
) (*credential.Record, bool) {
	orch, exists := h.orchs[providerName]
	if !exists {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": label + " provider not configured",
		})
		return nil, false
	}

	out, err := orch.Check(c.Request.Context(), cookieValue(c, orch.Codec().Name))
	switch {
	case errors.Is(err, credential.ErrNoCredential):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": label + " authentication not found",
		})
		return nil, false
	case errors.Is(err, authflow.ErrReauthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": label + " reauthentication required",
		})
		return nil, false
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return nil, false
	}

	if out.Refreshed {
		if err := setCredentialCookie(c, orch, out.Record); err != nil {
			log.Printf("[Resources] Failed to encode %s cookie: %v", providerName, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return nil, false
		}
	}

	return out.Record, true
}

// fetch calls the provider API and maps errors: upstream non-2xx responses
// are relayed with their status and message, transport failures become a
// generic 500. On failure it writes the response and returns ok=false.
func (h *ResourceHandler) fetch(
	c *gin.Context,
	providerName, resource, accessToken, path string,
	query url.Values,
) ([]byte, bool) {
	orch := h.orchs[providerName]

	start := time.Now()
	body, err := orch.Client().Fetch(c.Request.Context(), accessToken, path, query)
	h.metrics.RecordUpstreamRequest(providerName, resource, fetchStatus(err), time.Since(start))
	if err != nil {
		var upstream *provider.UpstreamError
		if errors.As(err, &upstream) {
			c.JSON(upstream.StatusCode, gin.H{"error": upstream.Message})
			return nil, false
		}

		log.Printf("[Resources] %s %s fetch failed: %v", providerName, resource, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return nil, false
	}

	return body, true
}

// cachedResponse checks the response cache. A miss or a disabled cache
// returns ok=false.
func (h *ResourceHandler) cachedResponse(
	c *gin.Context,
	resource, accessToken, startDate, endDate string,
) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}

	key := responseCacheKey(resource, accessToken, startDate, endDate)
	value, err := h.cache.Get(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("[Resources] Cache get failed: %v", err)
		}
		h.metrics.RecordCacheMiss(resource)
		return nil, false
	}

	h.metrics.RecordCacheHit(resource)
	return []byte(value), true
}

// storeResponse writes a successful response to the cache, best-effort.
func (h *ResourceHandler) storeResponse(
	c *gin.Context,
	resource, accessToken, startDate, endDate string,
	body []byte,
) {
	if h.cache == nil {
		return
	}

	key := responseCacheKey(resource, accessToken, startDate, endDate)
	if err := h.cache.Set(c.Request.Context(), key, string(body), h.cacheTTL); err != nil {
		log.Printf("[Resources] Cache set failed: %v", err)
	}
}

// dateRange validates the required start_date/end_date query parameters.
// On failure it writes a 400 response and returns ok=false.
func dateRange(c *gin.Context) (startDate, endDate string, ok bool) {
	startDate = c.Query("start_date")
	endDate = c.Query("end_date")
	if startDate == "" || endDate == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "start_date and end_date are required",
		})
		return "", "", false
	}

	for _, d := range []string{startDate, endDate} {
		if _, err := time.Parse(dateLayout, d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "dates must be formatted as yyyy-MM-dd",
			})
			return "", "", false
		}
	}

	return startDate, endDate, true
}

// responseCacheKey derives the cache key from a hash of the access token
// plus the request identity, so cached data is scoped to the credential
// that fetched it.
func responseCacheKey(resource, accessToken, startDate, endDate string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return fmt.Sprintf("%s:%s:%s:%s", hex.EncodeToString(sum[:8]), resource, startDate, endDate)
}

// activityID extracts an activity's numeric ID as a string.
func activityID(activity map[string]any) (string, bool) {
	raw, ok := activity["id"]
	if !ok {
		return "", false
	}

	switch v := raw.(type) {
	case float64:
		return fmt.Sprintf("%.0f", v), true
	case string:
		return v, true
	default:
		return "", false
	}
}

// fetchStatus maps a fetch result onto an HTTP status for metrics.
func fetchStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var upstream *provider.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}
	return 0
}
