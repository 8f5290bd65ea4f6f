package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rincondev/warelay/internal/carrier/twilio"
)

// emptyTwiML acknowledges a Twilio webhook without queueing a reply.
// Outbound messages go through the REST API instead, so the carrier
// always gets the same empty envelope whatever the arbiter decided.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// handleWebhook receives one inbound carrier message. The sender
// address arrives in From and the text in Body, form-encoded.
//
// The response is written before handling finishes: persistence and the
// possible automated reply run in the background so a slow completion
// never trips the carrier's webhook timeout. Internal failures are
// logged, never surfaced to the carrier.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	if s.cfg.Carriers.Twilio.VerifyWebhooks {
		sig := r.Header.Get("X-Twilio-Signature")
		url := requestURL(r)
		if !twilio.ValidateSignature(s.cfg.Carriers.Twilio.AuthToken, url, r.PostForm, sig) {
			slog.Warn("webhook signature rejected", "from", from)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	if !s.webhookLimiter.Allow(from) {
		slog.Warn("webhook rate limited", "from", from)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.arb.HandleInbound(ctx, from, body); err != nil {
			slog.Error("inbound handling failed", "from", from, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(emptyTwiML))
}

// requestURL reconstructs the public URL Twilio signed. Behind a proxy
// the forwarded proto header wins; Twilio only posts to https in
// production anyway.
func requestURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.RequestURI
}
