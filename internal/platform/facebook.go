package platform

import (
	"context"
	"fmt"
	"net/http"
)

const facebookGraphURL = "https://graph.facebook.com/v21.0"

// FacebookAdapter posts to a Facebook Page: plain feed posts, single photos, or multi-photo
// posts built from unpublished photo uploads.
type FacebookAdapter struct {
	creds   CredentialSource
	client  *http.Client
	baseURL string
}

func NewFacebookAdapter(creds CredentialSource) *FacebookAdapter {
	return &FacebookAdapter{creds: creds, client: defaultHTTPClient(), baseURL: facebookGraphURL}
}

func (fb *FacebookAdapter) WithBaseURL(baseURL string, client *http.Client) *FacebookAdapter {
	fb.baseURL = baseURL
	if client != nil {
		fb.client = client
	}
	return fb
}

func (fb *FacebookAdapter) Platform() string { return Facebook }

func (fb *FacebookAdapter) Publish(ctx context.Context, content Content) Result {
	creds, err := fb.creds.Credentials(ctx, Facebook)
	if err != nil {
		return Failed("%v", err)
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}

	switch len(content.Media) {
	case 0:
		url := fmt.Sprintf("%s/%s/feed", fb.baseURL, creds.AccountID)
		_, err = postJSON(ctx, fb.client, url, nil, map[string]any{
			"message":      content.Text,
			"access_token": creds.AccessToken,
		}, &result)
	case 1:
		url := fmt.Sprintf("%s/%s/photos", fb.baseURL, creds.AccountID)
		_, err = postJSON(ctx, fb.client, url, nil, map[string]any{
			"url":          content.Media[0],
			"caption":      content.Text,
			"access_token": creds.AccessToken,
		}, &result)
	default:
		attached := make([]map[string]string, 0, len(content.Media))
		for _, mediaURL := range content.Media {
			photoID, uploadErr := fb.uploadUnpublished(ctx, creds, mediaURL)
			if uploadErr != nil {
				return Failed("facebook photo upload: %v", uploadErr)
			}
			attached = append(attached, map[string]string{"media_fbid": photoID})
		}
		url := fmt.Sprintf("%s/%s/feed", fb.baseURL, creds.AccountID)
		_, err = postJSON(ctx, fb.client, url, nil, map[string]any{
			"message":        content.Text,
			"attached_media": attached,
			"access_token":   creds.AccessToken,
		}, &result)
	}
	if err != nil {
		return Failed("facebook publish: %v", err)
	}

	id := result.PostID
	if id == "" {
		id = result.ID
	}
	if id == "" {
		return Failed("facebook returned no post id")
	}
	return Succeeded(id)
}

func (fb *FacebookAdapter) uploadUnpublished(ctx context.Context, creds Credentials, mediaURL string) (string, error) {
	url := fmt.Sprintf("%s/%s/photos", fb.baseURL, creds.AccountID)
	var result struct {
		ID string `json:"id"`
	}
	if _, err := postJSON(ctx, fb.client, url, nil, map[string]any{
		"url":          mediaURL,
		"published":    false,
		"access_token": creds.AccessToken,
	}, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no photo id returned")
	}
	return result.ID, nil
}
