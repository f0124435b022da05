package publish

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// Graph API error codes that signal throttling or a temporary outage.
var graphTransientCodes = map[int]bool{
	1:   true, // unknown error
	2:   true, // service temporarily unavailable
	4:   true, // application request limit
	17:  true, // user request limit
	32:  true, // page request limit
	613: true, // calls exceed rate limit
}

// newGraphClient returns an apiClient for the Facebook Graph API that sends
// token as a bearer credential.
func newGraphClient(platform, baseURL, token string, timeout time.Duration) *apiClient {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = timeout
	return &apiClient{
		baseURL:     baseURL,
		http:        httpClient,
		decodeError: graphErrorDecoder(platform),
	}
}

func graphErrorDecoder(platform string) errorDecoder {
	return func(status int, body []byte) *APIError {
		apiErr := &APIError{
			Platform:  platform,
			Status:    status,
			Message:   snippet(body),
			Retryable: retryableStatus(status),
		}
		var envelope struct {
			Error struct {
				Message     string `json:"message"`
				Type        string `json:"type"`
				Code        int    `json:"code"`
				IsTransient bool   `json:"is_transient"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
			apiErr.Code = envelope.Error.Code
			if envelope.Error.IsTransient || graphTransientCodes[envelope.Error.Code] {
				apiErr.Retryable = true
			}
		}
		return apiErr
	}
}

type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// objectID prefers post_id, which photo and video uploads return alongside
// the media id.
func (g graphID) objectID() string {
	if g.PostID != "" {
		return g.PostID
	}
	return g.ID
}
