package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rincondev/warelay/internal/config"
	"github.com/rincondev/warelay/internal/providers"
)

// Carrier sends messages through the Twilio REST API.
type Carrier struct {
	accountSID string
	authToken  string
	from       string
	apiBase    string
	client     *http.Client
	retry      providers.RetryConfig
}

func New(cfg config.TwilioConfig) (*Carrier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token are required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("twilio originating address (from) is required")
	}

	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.twilio.com"
	}

	return &Carrier{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		apiBase:    strings.TrimRight(apiBase, "/"),
		client:     &http.Client{Timeout: 30 * time.Second},
		retry:      providers.DefaultRetryConfig(),
	}, nil
}

func (c *Carrier) Name() string { return "twilio" }

// Send creates an outbound message via POST /2010-04-01/Accounts/{SID}/Messages.json.
func (c *Carrier) Send(ctx context.Context, chatID, body string) error {
	form := url.Values{}
	form.Set("To", chatID)
	form.Set("From", c.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.apiBase, c.accountSID)

	_, err := providers.RetryDo(ctx, c.retry, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return struct{}{}, fmt.Errorf("twilio: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.accountSID, c.authToken)

		resp, err := c.client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("twilio: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			return struct{}{}, &providers.HTTPError{
				Status:     resp.StatusCode,
				Body:       fmt.Sprintf("twilio: %s", string(respBody)),
				RetryAfter: providers.ParseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}
		return struct{}{}, nil
	})
	return err
}

// ValidateSignature checks the X-Twilio-Signature header for a webhook
// request. The expected signature is HMAC-SHA1 over the full request URL
// concatenated with the sorted POST parameters, base64 encoded.
func ValidateSignature(authToken, requestURL string, form url.Values, signature string) bool {
	expected := computeSignature(authToken, requestURL, form)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func computeSignature(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := requestURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
