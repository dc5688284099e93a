package core

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

type (
	// EmailMessage is one rendered notification ready for delivery.
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		HTMLContent string
		TextContent string
		SenderID    int // platform user the message is sent on behalf of; 0 = system
	}

	// TemplateContext carries the placeholder values substituted into a
	// notification subject/body.
	TemplateContext struct {
		UserFullName  string
		UserFirstName string
		UserLastName  string
		UserEmail     string
		CourseName    string
		CourseShort   string
		ActivityName  string
		SenderName    string
		SiteURL       string
		ReactionURL   string
	}

	// Deliverer is any service that can deliver a rendered message.
	// A failed delivery must return an error so the caller can release its
	// ledger claim and retry on a later pass.
	Deliverer interface {
		DeliverMessage(ctx context.Context, msg *EmailMessage) error
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// placeholders returns the substitution pairs for strings.NewReplacer.
func (tc TemplateContext) placeholders() []string {
	return []string{
		"{User_fullname}", tc.UserFullName,
		"{User_firstname}", tc.UserFirstName,
		"{User_lastname}", tc.UserLastName,
		"{User_email}", tc.UserEmail,
		"{Course_fullname}", tc.CourseName,
		"{Course_shortname}", tc.CourseShort,
		"{Activity_name}", tc.ActivityName,
		"{Sender_fullname}", tc.SenderName,
		"{Site_url}", tc.SiteURL,
		"{Reaction_url}", tc.ReactionURL,
	}
}

// RenderTemplate substitutes placeholder variables in a subject or body
// template. Unknown placeholders are left untouched.
func RenderTemplate(tmpl string, tc TemplateContext) string {
	return strings.NewReplacer(tc.placeholders()...).Replace(tmpl)
}

var (
	tagRegex   = regexp.MustCompile(`<[^>]*>`)
	blankRegex = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText derives a plain-text alternative from an HTML body.
func HTMLToText(html string) string {
	text := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n", "</div>", "\n").Replace(html)
	text = tagRegex.ReplaceAllString(text, "")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	return strings.TrimSpace(blankRegex.ReplaceAllString(text, "\n\n"))
}

// ComposeMessage renders a notification message for one recipient: placeholder
// substitution on subject and body, site header/footer joined around the body
// and a derived plain-text alternative.
func ComposeMessage(to mail.Address, subject, body, header, footer string, tc TemplateContext) *EmailMessage {
	html := fmt.Sprintf("%s%s%s", header, RenderTemplate(body, tc), footer)
	return &EmailMessage{
		To:          []mail.Address{to},
		Subject:     RenderTemplate(subject, tc),
		HTMLContent: html,
		TextContent: HTMLToText(html),
	}
}
