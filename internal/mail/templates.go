package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Template names.
const (
	TemplateEmailConfirmation = "email_confirmation"
	TemplatePasswordReset     = "password_reset"
)

type templateSet struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var templates = map[string]templateSet{
	TemplateEmailConfirmation: {
		subject: "Confirm your email address",
		text: texttemplate.Must(texttemplate.New("text").Parse(`Hello,

Your confirmation code is {{.Code}}. It expires in {{.ExpiresIn}}.

Or open {{.BaseURL}}/confirm-email?email={{urlquery .Email}}&code={{.Code}}

If you did not create an account you can ignore this email.
`)),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(`<p>Hello,</p>
<p>Your confirmation code is <strong>{{.Code}}</strong>. It expires in {{.ExpiresIn}}.</p>
<p><a href="{{.BaseURL}}/confirm-email?email={{.Email}}&code={{.Code}}">Confirm email</a></p>
<p>If you did not create an account you can ignore this email.</p>
`)),
	},
	TemplatePasswordReset: {
		subject: "Reset your password",
		text: texttemplate.Must(texttemplate.New("text").Parse(`Hello,

Your password reset code is {{.Code}}. It expires in {{.ExpiresIn}}.

Or open {{.BaseURL}}/reset-password?email={{urlquery .Email}}&code={{.Code}}

If you did not request a reset you can ignore this email. Your password has not changed.
`)),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(`<p>Hello,</p>
<p>Your password reset code is <strong>{{.Code}}</strong>. It expires in {{.ExpiresIn}}.</p>
<p><a href="{{.BaseURL}}/reset-password?email={{.Email}}&code={{.Code}}">Reset password</a></p>
<p>If you did not request a reset you can ignore this email. Your password has not changed.</p>
`)),
	},
}

type templateData struct {
	Email     string
	Code      string
	ExpiresIn string
	BaseURL   string
}

// Renderer turns a template name and job data into a Message.
type Renderer struct {
	baseURL string
}

// NewRenderer returns a renderer building links under baseURL.
func NewRenderer(baseURL string) *Renderer {
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/")}
}

// Render renders template name for to. data supplies "code" and "expires_in".
func (r *Renderer) Render(name, to string, data map[string]string) (Message, error) {
	set, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown template %q", name)
	}
	td := templateData{Email: to, Code: data["code"], ExpiresIn: data["expires_in"], BaseURL: r.baseURL}
	var text, html bytes.Buffer
	if err := set.text.Execute(&text, td); err != nil {
		return Message{}, fmt.Errorf("mail: render %s text: %w", name, err)
	}
	if err := set.html.Execute(&html, td); err != nil {
		return Message{}, fmt.Errorf("mail: render %s html: %w", name, err)
	}
	return Message{To: to, Subject: set.subject, TextBody: text.String(), HTMLBody: html.String()}, nil
}
