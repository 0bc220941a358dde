package flagkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GetRemoteConfigPayload fetches the remote-config payload for key. The
// endpoint may return raw JSON, a JSON string, or a JSON string whose
// content is itself JSON (double-encoded) — the result is unwrapped one
// layer when it parses as a JSON string, matching spec 4.L.
func (c *Client) GetRemoteConfigPayload(ctx context.Context, key string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/projects/@current/feature_flags/%s/remote_config?token=%s", c.cfg.HostURL, key, c.cfg.ProjectAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("flagkit: build remote config request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("remote config request failed")
		return nil, fmt.Errorf("flagkit: remote config request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("key", key).Msg("remote config returned non-200")
		return nil, fmt.Errorf("flagkit: remote config returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("flagkit: read remote config response: %w", err)
	}

	return unwrapRemoteConfig(body), nil
}

// unwrapRemoteConfig peels off one layer of string-encoding: if body
// decodes as a JSON string whose own content is valid JSON, that inner
// content is returned; otherwise body is returned unchanged.
func unwrapRemoteConfig(body []byte) json.RawMessage {
	var asString string
	if err := json.Unmarshal(body, &asString); err != nil {
		return body
	}
	if json.Valid([]byte(asString)) {
		return json.RawMessage(asString)
	}
	return body
}
