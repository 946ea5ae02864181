package mail

import (
	"bytes"
	"html/template"

	"github.com/itorigin/site/internal/config"
)

// BuildConfig maps the application mail section onto a sender Config.
func BuildConfig(cfg config.MailConfig) Config {
	return Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		User:      cfg.SMTPUser,
		Pass:      cfg.SMTPPass,
		From:      cfg.From,
		ReplyTo:   cfg.ReplyTo,
		ResendKey: cfg.ResendAPIKey,
	}
}

const welcomeTpl = `<!DOCTYPE html>
<html lang="en">
<body style="font-family:ui-sans-serif,system-ui,-apple-system,Segoe UI,Roboto,Helvetica Neue,Arial,sans-serif;background:#fff;padding:.5rem">
  <table align="center" width="100%" role="presentation" style="max-width:550px;margin:40px auto;padding:20px;border:1px solid #0ea5e9;border-radius:.25rem">
    <tr><td>
      <h1 style="font-size:18px;font-weight:500">Thanks for subscribing to {{.SiteName}}</h1>
      <p style="font-size:14px;line-height:24px">Hi {{if .Name}}{{.Name}}{{else}}there{{end}}, you will receive our security research, whitepapers and product news at {{.Email}}.</p>
      <p style="font-size:12px;color:#666"><a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>
    </td></tr>
  </table>
</body>
</html>`

var welcomeTemplate = template.Must(template.New("welcome").Parse(welcomeTpl))

// WelcomeData fills the subscription confirmation email.
type WelcomeData struct {
	SiteName       string
	Name           string
	Email          string
	UnsubscribeURL string
}

// RenderWelcome renders the subscription confirmation email.
func RenderWelcome(data WelcomeData) (string, error) {
	var buf bytes.Buffer
	if err := welcomeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
