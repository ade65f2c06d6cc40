package app

import (
	"strings"

	"github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/pkg/mail"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		AccessTokenTTL: ttl,
	}
}

// SMTPSettings converts the smtp section for pkg/mail. A missing sender address falls back to
// calsched@<host> so invitation mail always carries a From header.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	from := strings.TrimSpace(smtp.From)
	host := strings.TrimSpace(smtp.Host)
	if from == "" && host != "" {
		from = "calsched@" + host
	}
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     host,
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     from,
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}
