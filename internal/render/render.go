// Package render turns a newsletter issue into the subject, HTML and plain
// text parts of an email.
package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strconv"
	"strings"
	texttemplate "text/template"
	"unicode/utf8"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Issue is one piece of Content addressed to one reader.
type Issue struct {
	TopicName string
	Title     string
	Body      string
	// UnsubscribeURL is rendered as a footer link when set. The archived
	// web version leaves it empty.
	UnsubscribeURL string
}

// Rendered holds the parts of an email.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer renders issues with the embedded templates. It is safe for
// concurrent use.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/issue.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}

	text, err := texttemplate.New("issue.txt.tmpl").
		Funcs(texttemplate.FuncMap{"underline": underline}).
		ParseFS(templateFS, "templates/issue.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}

	return &Renderer{html: html, text: text}, nil
}

// Render produces the subject and both bodies for issue. HTML output escapes
// every field; the plain text part is emitted verbatim.
func (r *Renderer) Render(issue Issue) (Rendered, error) {
	var html, text bytes.Buffer
	if err := r.html.Execute(&html, issue); err != nil {
		return Rendered{}, fmt.Errorf("render html: %w", err)
	}
	if err := r.text.Execute(&text, issue); err != nil {
		return Rendered{}, fmt.Errorf("render text: %w", err)
	}

	return Rendered{
		Subject: Subject(issue.TopicName, issue.Title),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()),
	}, nil
}

// Subject is "<topic> - <title>".
func Subject(topicName, title string) string {
	return topicName + " - " + title
}

// UnsubscribeURL builds the link that removes one subscription.
func UnsubscribeURL(baseURL string, subscriberID, topicID int64) string {
	q := url.Values{}
	q.Set("subscriber", strconv.FormatInt(subscriberID, 10))
	q.Set("topic", strconv.FormatInt(topicID, 10))
	return strings.TrimRight(baseURL, "/") + "/unsubscribe?" + q.Encode()
}

func underline(s string) string {
	return strings.Repeat("=", utf8.RuneCountInString(s))
}
