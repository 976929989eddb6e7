package job

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// AnalysisTrigger hands a completed collection off to the downstream
// analysis stage. Implementations return the analysis job id they started.
type AnalysisTrigger interface {
	Trigger(ctx context.Context, requestID, jobID string) (analysisID string, err error)
}

// WebhookTrigger POSTs a completion notification to the analysis engine.
type WebhookTrigger struct {
	URL    string
	Client *http.Client
}

// NewWebhookTrigger creates a trigger against the given endpoint.
func NewWebhookTrigger(url string) *WebhookTrigger {
	return &WebhookTrigger{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *WebhookTrigger) Trigger(ctx context.Context, requestID, jobID string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"request_id":         requestID,
		"data_collection_id": jobID,
	})
	if err != nil {
		return "", eris.Wrap(err, "trigger: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "trigger: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "trigger: post notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", eris.Errorf("trigger: analysis engine returned %d", resp.StatusCode)
	}

	var ack struct {
		AnalysisID string `json:"analysis_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		// Some engines acknowledge with an empty body.
		return "", nil
	}
	return ack.AnalysisID, nil
}
