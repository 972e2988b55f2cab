package platform

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	twitterTweetURL  = "https://api.twitter.com/2/tweets"
	twitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	twitterMaxMedia  = 4
)

// TwitterKeys are the OAuth 1.0a user-context credentials of the posting account.
type TwitterKeys struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

func (k TwitterKeys) complete() bool {
	return k.ConsumerKey != "" && k.ConsumerSecret != "" && k.AccessToken != "" && k.AccessSecret != ""
}

// TwitterAdapter uploads media through the v1.1 upload endpoint and posts through API v2.
type TwitterAdapter struct {
	keys      TwitterKeys
	limit     int
	client    *http.Client
	tweetURL  string
	uploadURL string
	now       func() time.Time
	nonce     func() string
}

func NewTwitterAdapter(keys TwitterKeys, charLimit int) *TwitterAdapter {
	return &TwitterAdapter{
		keys:      keys,
		limit:     charLimit,
		client:    defaultHTTPClient(),
		tweetURL:  twitterTweetURL,
		uploadURL: twitterUploadURL,
		now:       time.Now,
		nonce:     randomNonce,
	}
}

func (tw *TwitterAdapter) WithURLs(tweetURL, uploadURL string, client *http.Client) *TwitterAdapter {
	tw.tweetURL = tweetURL
	tw.uploadURL = uploadURL
	if client != nil {
		tw.client = client
	}
	return tw
}

func (tw *TwitterAdapter) Platform() string { return X }

func (tw *TwitterAdapter) Publish(ctx context.Context, content Content) Result {
	if !tw.keys.complete() {
		return Failed("X/Twitter credentials are not configured")
	}

	media := content.Media
	if len(media) > twitterMaxMedia {
		media = media[:twitterMaxMedia]
	}
	mediaIDs := make([]string, 0, len(media))
	for _, mediaURL := range media {
		id, err := tw.uploadMedia(ctx, mediaURL)
		if err != nil {
			return Failed("x media upload: %v", err)
		}
		mediaIDs = append(mediaIDs, id)
	}

	payload := map[string]any{"text": Truncate(content.Text, tw.limit)}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Failed("x payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tw.tweetURL, bytes.NewReader(body))
	if err != nil {
		return Failed("x request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", tw.authorization(http.MethodPost, tw.tweetURL, nil))

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := tw.do(req, &out); err != nil {
		return Failed("x publish: %v", err)
	}
	if out.Data.ID == "" {
		return Failed("x returned no tweet id")
	}
	res := Succeeded(out.Data.ID)
	res.URL = "https://x.com/i/web/status/" + out.Data.ID
	return res
}

func (tw *TwitterAdapter) uploadMedia(ctx context.Context, mediaURL string) (string, error) {
	data, err := download(ctx, tw.client, mediaURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", "upload")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tw.uploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	// multipart bodies are not part of the signature base string
	req.Header.Set("Authorization", tw.authorization(http.MethodPost, tw.uploadURL, nil))

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := tw.do(req, &out); err != nil {
		return "", err
	}
	if out.MediaIDString == "" {
		return "", fmt.Errorf("no media id returned")
	}
	return out.MediaIDString, nil
}

func (tw *TwitterAdapter) do(req *http.Request, out any) error {
	resp, err := tw.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, truncateBody(body))
	}
	return json.Unmarshal(body, out)
}

func (tw *TwitterAdapter) authorization(method, rawURL string, params url.Values) string {
	return oauth1Header(tw.keys, method, rawURL, params, tw.nonce(), tw.now().Unix())
}

// oauth1Header builds an OAuth 1.0a HMAC-SHA1 Authorization header. params holds the query and
// form parameters that take part in the signature.
func oauth1Header(keys TwitterKeys, method, rawURL string, params url.Values, nonce string, timestamp int64) string {
	oauth := map[string]string{
		"oauth_consumer_key":     keys.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(timestamp, 10),
		"oauth_token":            keys.AccessToken,
		"oauth_version":          "1.0",
	}

	pairs := make([]string, 0, len(oauth)+len(params))
	for k, v := range oauth {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
	}
	for k, vs := range params {
		for _, v := range vs {
			pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
		}
	}
	sort.Strings(pairs)

	base := strings.ToUpper(method) + "&" + percentEncode(rawURL) + "&" + percentEncode(strings.Join(pairs, "&"))
	key := percentEncode(keys.ConsumerSecret) + "&" + percentEncode(keys.AccessSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	oauth["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	names := make([]string, 0, len(oauth))
	for k := range oauth {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, percentEncode(k), percentEncode(oauth[k])))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// percentEncode follows RFC 3986: spaces become %20 and only unreserved characters pass through.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func randomNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

func download(ctx context.Context, client *http.Client, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", mediaURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
