package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"herald/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies that the filesystem holding path has at least
// minFree bytes available to unprivileged users.
func CheckDiskSpace(name, path string, minFree uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", formatBytes(free), path)
	if free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s)", detail, formatBytes(minFree))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckCredentials reports whether each enabled platform has the settings
// its binding needs. Tokens are shown redacted.
func CheckCredentials(cfg *config.Config) []Result {
	var results []Result
	if cfg.Twitter.Enabled {
		results = append(results, credentialResult("Twitter credentials", cfg.Twitter.AccessToken,
			missing("refresh_token or client_id", cfg.Twitter.RefreshToken != "" && cfg.Twitter.ClientID == "")))
	}
	if cfg.Instagram.Enabled {
		results = append(results, credentialResult("Instagram credentials", cfg.Instagram.AccessToken,
			missing("account_id", cfg.Instagram.AccountID == ""),
			missing("media_base_url", cfg.Instagram.MediaBaseURL == "")))
	}
	if cfg.Facebook.Enabled {
		results = append(results, credentialResult("Facebook credentials", cfg.Facebook.AccessToken,
			missing("page_id", cfg.Facebook.PageID == "")))
	}
	if cfg.TikTok.Enabled {
		results = append(results, Result{Name: "TikTok", Passed: true, Detail: "manual posting only"})
	}
	return results
}

func missing(field string, absent bool) string {
	if absent {
		return field
	}
	return ""
}

func credentialResult(name, token string, problems ...string) Result {
	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "access token missing"}
	}
	var absent []string
	for _, p := range problems {
		if p != "" {
			absent = append(absent, p)
		}
	}
	if len(absent) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(absent, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: "token " + config.Redact(token)}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
