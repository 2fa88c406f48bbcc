package handlers

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/gin-gonic/gin"

	"github.com/go-vitals/vitals/internal/metrics"
)

// maxInsightsPayload caps the request body forwarded upstream.
const maxInsightsPayload = 1 << 20 // 1MB

// InsightsHandler proxies combined-metrics payloads to the narrative
// analysis upstream. This is the slowest call in the system, so it runs on
// a dedicated retrying client with a long timeout.
type InsightsHandler struct {
	apiURL  string
	client  *retry.Client
	metrics metrics.Recorder
}

// NewInsightsHandler creates an InsightsHandler. client may be nil when the
// upstream is not configured; requests then answer 503.
func NewInsightsHandler(apiURL string, client *retry.Client, m metrics.Recorder) *InsightsHandler {
	return &InsightsHandler{
		apiURL:  apiURL,
		client:  client,
		metrics: m,
	}
}

// Generate forwards the posted metrics payload and relays the upstream
// analysis response.
func (h *InsightsHandler) Generate(c *gin.Context) {
	if h.apiURL == "" || h.client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "insights upstream not configured",
		})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInsightsPayload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is required"})
		return
	}
	if len(payload) > maxInsightsPayload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	start := time.Now()
	resp, err := h.client.Post(
		c.Request.Context(),
		h.apiURL,
		retry.WithBody("application/json", bytes.NewBuffer(payload)),
	)
	if err != nil {
		h.metrics.RecordInsightsRequest(false, time.Since(start))
		log.Printf("[Insights] Upstream request failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "insights upstream unavailable"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.metrics.RecordInsightsRequest(false, time.Since(start))
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read upstream response"})
		return
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	h.metrics.RecordInsightsRequest(success, time.Since(start))

	if !success {
		// Analysis errors carry no credentials; relay status and message.
		c.JSON(resp.StatusCode, gin.H{"error": upstreamBodyMessage(body, resp.Status)})
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// upstreamBodyMessage extracts a short message from an upstream error body.
func upstreamBodyMessage(body []byte, status string) string {
	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	if preview != "" {
		return preview
	}
	return status
}
