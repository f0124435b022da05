package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"

	"herald/internal/adaptation"
	"herald/internal/config"
	"herald/internal/logging"
	"herald/internal/queue"
)

const (
	tweetLimit             = 280
	pollOptionLimit        = 25
	defaultPollMinutes     = 24 * 60
	minPollMinutes         = 5
	maxPollMinutes         = 7 * 24 * 60
	maxTweetImages         = 4
	twitterStatusURLPrefix = "https://twitter.com/i/web/status/"
)

// Twitter publishes through the X/Twitter API v2.
type Twitter struct {
	api    *apiClient
	logger *slog.Logger
}

// NewTwitter builds the binding. When a refresh token and client id are
// configured the access token is refreshed automatically on expiry;
// otherwise the access token is used as-is.
func NewTwitter(cfg config.Twitter, logger *slog.Logger) *Twitter {
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}
	var source oauth2.TokenSource
	if cfg.RefreshToken != "" && cfg.ClientID != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		// Forces a refresh on first use since the stored token's expiry is unknown.
		token.Expiry = time.Now().Add(-time.Minute)
		source = oauthCfg.TokenSource(context.Background(), token)
	} else {
		source = oauth2.StaticTokenSource(token)
	}
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second

	return &Twitter{
		api: &apiClient{
			baseURL:     cfg.BaseURL,
			http:        httpClient,
			decodeError: decodeTwitterError,
		},
		logger: logging.NewComponentLogger(logger, "twitter"),
	}
}

func (t *Twitter) Platform() queue.Platform { return queue.PlatformTwitter }

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
	Poll  *tweetPoll  `json:"poll,omitempty"`
	Reply *tweetReply `json:"reply,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetPoll struct {
	Options         []string `json:"options"`
	DurationMinutes int      `json:"duration_minutes"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type mediaUploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Publish posts a single tweet, a poll, or a reply-chained thread. Every
// tweet is length-checked before the first API call.
func (t *Twitter) Publish(ctx context.Context, req Request) Result {
	parts, poll, err := composeTweets(req)
	if err != nil {
		return invalid(queue.PlatformTwitter, "%v", err)
	}
	if poll != nil && len(req.MediaPaths) > 0 {
		return invalid(queue.PlatformTwitter, "polls cannot carry media")
	}
	if len(req.MediaPaths) > maxTweetImages {
		return invalid(queue.PlatformTwitter, "at most %d media per tweet, got %d", maxTweetImages, len(req.MediaPaths))
	}

	mediaIDs := make([]string, 0, len(req.MediaPaths))
	for _, path := range req.MediaPaths {
		id, err := t.upload(ctx, path)
		if err != nil {
			return failure(queue.PlatformTwitter, err)
		}
		mediaIDs = append(mediaIDs, id)
	}

	var ids []string
	for i, text := range parts {
		payload := tweetRequest{Text: text}
		if i == 0 {
			if len(mediaIDs) > 0 {
				payload.Media = &tweetMedia{MediaIDs: mediaIDs}
			}
			payload.Poll = poll
		} else {
			payload.Reply = &tweetReply{InReplyToTweetID: ids[len(ids)-1]}
		}

		var resp tweetResponse
		err := t.api.postJSON(ctx, "/2/tweets", payload, &resp)
		err = confirmCreated("/2/tweets", err, resp.Data.ID)
		if err != nil {
			if len(ids) > 0 {
				// Retrying would repost the tweets that already went out.
				res := failure(queue.PlatformTwitter, fmt.Errorf("thread stopped after %d of %d tweets (first %s): %w", len(ids), len(parts), ids[0], err))
				res.Retryable = false
				return res
			}
			return failure(queue.PlatformTwitter, err)
		}
		ids = append(ids, resp.Data.ID)
	}

	t.logger.Debug("tweets created",
		logging.Int("count", len(ids)),
		logging.String("tweet_id", ids[0]),
	)
	return success(queue.PlatformTwitter, ids[0], twitterStatusURLPrefix+ids[0])
}

func (t *Twitter) upload(ctx context.Context, path string) (string, error) {
	category := "tweet_image"
	if adaptation.IsVideo(path) {
		category = "tweet_video"
	}
	var resp mediaUploadResponse
	if err := t.api.postMultipart(ctx, "/2/media/upload", map[string]string{"media_category": category}, "media", path, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", errors.New("media upload response missing id")
	}
	return resp.Data.ID, nil
}

// composeTweets returns tweet texts in posting order and the poll, if any.
// Threads carry hashtags, mentions, and the link on their last tweet.
func composeTweets(req Request) ([]string, *tweetPoll, error) {
	var parts []string
	if req.PostType == queue.PostTypeThread {
		raw := SplitThread(req.Content.Text)
		if len(raw) == 0 {
			return nil, nil, errors.New("thread has no text")
		}
		for i, part := range raw {
			if i == len(raw)-1 {
				parts = append(parts, buildCaption(part, req.Content, true))
			} else {
				parts = append(parts, buildCaption(part, queue.Content{}, false))
			}
		}
	} else {
		parts = []string{BuildCaption(req.Content)}
	}
	for i, part := range parts {
		if n := utf8.RuneCountInString(part); n > tweetLimit {
			return nil, nil, fmt.Errorf("tweet %d is %d characters, limit %d", i+1, n, tweetLimit)
		}
	}
	if parts[0] == "" && len(req.MediaPaths) == 0 {
		return nil, nil, errors.New("tweet has no text or media")
	}

	if req.PostType != queue.PostTypePoll {
		return parts, nil, nil
	}
	options := req.Content.PollOptions
	if len(options) < 2 || len(options) > 4 {
		return nil, nil, fmt.Errorf("polls need 2 to 4 options, got %d", len(options))
	}
	for _, option := range options {
		if n := utf8.RuneCountInString(option); n == 0 || n > pollOptionLimit {
			return nil, nil, fmt.Errorf("poll option %q must be 1 to %d characters", option, pollOptionLimit)
		}
	}
	minutes := req.Content.PollDurationMinutes
	if minutes == 0 {
		minutes = defaultPollMinutes
	}
	minutes = min(max(minutes, minPollMinutes), maxPollMinutes)
	return parts, &tweetPoll{Options: options, DurationMinutes: minutes}, nil
}

func decodeTwitterError(status int, body []byte) *APIError {
	message := snippet(body)
	var envelope struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		switch {
		case envelope.Detail != "":
			message = envelope.Detail
		case len(envelope.Errors) > 0 && envelope.Errors[0].Message != "":
			message = envelope.Errors[0].Message
		case envelope.Title != "":
			message = envelope.Title
		}
	}
	return &APIError{
		Platform:  string(queue.PlatformTwitter),
		Status:    status,
		Message:   message,
		Retryable: retryableStatus(status),
	}
}
