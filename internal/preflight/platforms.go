package preflight

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"herald/internal/config"
)

const platformCheckTimeout = 10 * time.Second

// CheckPlatforms contacts every enabled platform with its configured token.
func CheckPlatforms(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	if cfg.Twitter.Enabled {
		results = append(results, CheckTokenEndpoint(ctx, "Twitter API", cfg.Twitter.BaseURL, "/2/users/me", cfg.Twitter.AccessToken))
	}
	if cfg.Instagram.Enabled {
		results = append(results, CheckTokenEndpoint(ctx, "Instagram Graph API", cfg.Instagram.GraphBaseURL,
			"/"+cfg.Instagram.AccountID+"?fields=id", cfg.Instagram.AccessToken))
	}
	if cfg.Facebook.Enabled {
		results = append(results, CheckTokenEndpoint(ctx, "Facebook Graph API", cfg.Facebook.GraphBaseURL,
			"/"+cfg.Facebook.PageID+"?fields=id", cfg.Facebook.AccessToken))
	}
	return results
}

// CheckTokenEndpoint issues an authenticated GET and classifies the response.
func CheckTokenEndpoint(ctx context.Context, name, baseURL, path, token string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base url"}
	}
	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "missing access token"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, platformCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+path, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))

	client := &http.Client{Timeout: platformCheckTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (token rejected)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", resp.StatusCode)}
	}
}
