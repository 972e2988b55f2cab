package platform

import (
	"context"
	"net/http"
)

const (
	linkedInPostsURL = "https://api.linkedin.com/rest/posts"
	linkedInVersion  = "202409"
)

// LinkedInAdapter publishes organization posts through the versioned Posts API.
type LinkedInAdapter struct {
	creds  CredentialSource
	client *http.Client
	url    string
}

func NewLinkedInAdapter(creds CredentialSource) *LinkedInAdapter {
	return &LinkedInAdapter{creds: creds, client: defaultHTTPClient(), url: linkedInPostsURL}
}

func (li *LinkedInAdapter) WithURL(url string, client *http.Client) *LinkedInAdapter {
	li.url = url
	if client != nil {
		li.client = client
	}
	return li
}

func (li *LinkedInAdapter) Platform() string { return LinkedIn }

// Publish posts the commentary. TODO: upload images through the Images API
// (initializeUpload + PUT) and attach them as content.media instead of text-only posts.
func (li *LinkedInAdapter) Publish(ctx context.Context, content Content) Result {
	creds, err := li.creds.Credentials(ctx, LinkedIn)
	if err != nil {
		return Failed("%v", err)
	}

	payload := map[string]any{
		"author":     "urn:li:organization:" + creds.AccountID,
		"commentary": content.Text,
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []string{},
			"thirdPartyDistributionChannels": []string{},
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
	}
	headers := map[string]string{
		"Authorization":             "Bearer " + creds.AccessToken,
		"LinkedIn-Version":          linkedInVersion,
		"X-Restli-Protocol-Version": "2.0.0",
	}

	respHeaders, err := postJSON(ctx, li.client, li.url, headers, payload, nil)
	if err != nil {
		return Failed("linkedin publish: %v", err)
	}
	id := respHeaders.Get("x-restli-id")
	if id == "" {
		return Failed("linkedin returned no post id")
	}
	return Succeeded(id)
}
