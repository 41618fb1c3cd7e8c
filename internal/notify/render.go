// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"net/url"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ResetSubject is the subject line of password reset emails.
const ResetSubject = "Password Reset Request"

// Renderer turns a reset token into a Message.
type Renderer struct {
	baseURL string
	ttl     time.Duration
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

type resetData struct {
	Link      string
	ExpiresIn string
}

// NewRenderer creates a Renderer building links under baseURL, which must be
// an absolute http(s) URL. ttl is only used for the expiry note.
func NewRenderer(baseURL string, ttl time.Duration) (*Renderer, error) {
	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, oops.Code("NOTIFY_INVALID_BASE_URL").
			With("base_url", baseURL).
			Errorf("public base url must be an absolute http(s) url")
	}

	html, err := htmltemplate.ParseFS(templateFS, "templates/reset.html.tmpl")
	if err != nil {
		return nil, oops.Code("NOTIFY_TEMPLATE_INVALID").Wrap(err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/reset.txt.tmpl")
	if err != nil {
		return nil, oops.Code("NOTIFY_TEMPLATE_INVALID").Wrap(err)
	}

	return &Renderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		html:    html,
		text:    text,
	}, nil
}

// ResetLink returns the user-facing link for token.
func (r *Renderer) ResetLink(token string) string {
	return r.baseURL + "/reset-password/" + url.PathEscape(token)
}

// RenderPasswordReset renders the reset email for recipient.
func (r *Renderer) RenderPasswordReset(recipient, token string) (Message, error) {
	data := resetData{Link: r.ResetLink(token), ExpiresIn: humanizeTTL(r.ttl)}

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, data); err != nil {
		return Message{}, oops.Code("NOTIFY_RENDER_FAILED").With("part", "html").Wrap(err)
	}
	if err := r.text.Execute(&text, data); err != nil {
		return Message{}, oops.Code("NOTIFY_RENDER_FAILED").With("part", "text").Wrap(err)
	}

	return Message{
		To:      recipient,
		Subject: ResetSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// humanizeTTL renders whole hours or minutes, e.g. "1 hour" or "30 minutes".
func humanizeTTL(d time.Duration) string {
	unit, n := "minute", int(d/time.Minute)
	if d >= time.Hour && d%time.Hour == 0 {
		unit, n = "hour", int(d/time.Hour)
	}
	if n < 1 {
		n = 1
	}
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
