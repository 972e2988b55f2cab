package platform

import (
	"context"
	"fmt"
	"net/http"
)

const instagramGraphURL = "https://graph.instagram.com/v21.0"

// InstagramAdapter publishes through the Instagram Graph API content publishing flow:
// create a media container (or one per carousel child), then publish it.
type InstagramAdapter struct {
	platform string
	creds    CredentialSource
	client   *http.Client
	baseURL  string
}

func NewInstagramAdapter(platform string, creds CredentialSource) *InstagramAdapter {
	return &InstagramAdapter{
		platform: platform,
		creds:    creds,
		client:   defaultHTTPClient(),
		baseURL:  instagramGraphURL,
	}
}

// WithBaseURL points the adapter at another Graph host (tests).
func (ig *InstagramAdapter) WithBaseURL(baseURL string, client *http.Client) *InstagramAdapter {
	ig.baseURL = baseURL
	if client != nil {
		ig.client = client
	}
	return ig
}

func (ig *InstagramAdapter) Platform() string { return ig.platform }

func (ig *InstagramAdapter) Publish(ctx context.Context, content Content) Result {
	if len(content.Media) == 0 {
		return Failed("instagram requires at least one photo")
	}
	creds, err := ig.creds.Credentials(ctx, ig.platform)
	if err != nil {
		return Failed("%v", err)
	}

	var containerID string
	if len(content.Media) == 1 {
		containerID, err = ig.createContainer(ctx, creds, map[string]any{
			"image_url":    content.Media[0],
			"caption":      content.Text,
			"access_token": creds.AccessToken,
		})
	} else {
		containerID, err = ig.createCarousel(ctx, creds, content)
	}
	if err != nil {
		return Failed("instagram container: %v", err)
	}

	mediaID, err := ig.publishContainer(ctx, creds, containerID)
	if err != nil {
		return Failed("instagram publish: %v", err)
	}
	return Succeeded(mediaID)
}

func (ig *InstagramAdapter) createCarousel(ctx context.Context, creds Credentials, content Content) (string, error) {
	children := make([]string, 0, len(content.Media))
	for _, url := range content.Media {
		id, err := ig.createContainer(ctx, creds, map[string]any{
			"image_url":        url,
			"is_carousel_item": true,
			"access_token":     creds.AccessToken,
		})
		if err != nil {
			return "", fmt.Errorf("carousel item %s: %w", url, err)
		}
		children = append(children, id)
	}
	return ig.createContainer(ctx, creds, map[string]any{
		"media_type":   "CAROUSEL",
		"caption":      content.Text,
		"children":     children,
		"access_token": creds.AccessToken,
	})
}

func (ig *InstagramAdapter) createContainer(ctx context.Context, creds Credentials, payload map[string]any) (string, error) {
	url := fmt.Sprintf("%s/%s/media", ig.baseURL, creds.AccountID)
	var result struct {
		ID string `json:"id"`
	}
	if _, err := postJSON(ctx, ig.client, url, nil, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no media ID returned from Instagram")
	}
	return result.ID, nil
}

func (ig *InstagramAdapter) publishContainer(ctx context.Context, creds Credentials, containerID string) (string, error) {
	url := fmt.Sprintf("%s/%s/media_publish", ig.baseURL, creds.AccountID)
	var result struct {
		ID string `json:"id"`
	}
	payload := map[string]string{
		"creation_id":  containerID,
		"access_token": creds.AccessToken,
	}
	if _, err := postJSON(ctx, ig.client, url, nil, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no published media ID returned from Instagram")
	}
	return result.ID, nil
}
