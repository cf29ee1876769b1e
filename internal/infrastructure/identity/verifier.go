package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

// IntrospectionVerifier validates bearer tokens against the identity
// provider's introspection endpoint. The provider itself is an external
// collaborator; this client only maps its responses onto the two error
// classes the gateway cares about.
type IntrospectionVerifier struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

func NewIntrospectionVerifier(url string, timeout time.Duration, log *logger.Logger) *IntrospectionVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IntrospectionVerifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type introspectionResponse struct {
	OwnerID string `json:"ownerId"`
	Code    string `json:"code"`
}

func (v *IntrospectionVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Warnw("identity_introspection_failed", "error", err)
		return "", err
	}
	defer resp.Body.Close()

	var body introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode introspection response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK && body.OwnerID != "":
		return body.OwnerID, nil
	case body.Code == "token_expired":
		return "", ports.ErrTokenExpired
	default:
		return "", fmt.Errorf("token rejected: status %d", resp.StatusCode)
	}
}
