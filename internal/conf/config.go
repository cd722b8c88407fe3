package conf

import (
	"fmt"
	"os"
)

type Bootstrap struct {
	Server *Server `yaml:"server" json:"server"`
	Data   *Data   `yaml:"data" json:"data"`
	Stripe *Stripe `yaml:"stripe" json:"stripe"`
	Client *Client `yaml:"client" json:"client"`
	Log    *Log    `yaml:"log" json:"log"`
}

type Server struct {
	Http struct {
		Addr    string `yaml:"addr" json:"addr"`
		Timeout string `yaml:"timeout" json:"timeout"`
	} `yaml:"http" json:"http"`
	AdminToken string `yaml:"admin_token" json:"admin_token"`
}

type Data struct {
	Database struct {
		Driver          string `yaml:"driver" json:"driver"`
		Source          string `yaml:"source" json:"source"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	} `yaml:"database" json:"database"`
	Redis struct {
		Addr         string `yaml:"addr" json:"addr"`
		Password     string `yaml:"password" json:"password"`
		Db           int32  `yaml:"db" json:"db"`
		ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
	} `yaml:"redis" json:"redis"`
}

// Stripe holds the payment provider credentials. Both keys are required;
// a missing key is an operator error caught at startup, not per request.
type Stripe struct {
	SecretKey     string `yaml:"secret_key" json:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret" json:"webhook_secret"`
}

type Client struct {
	AuthService *AuthService `yaml:"auth_service" json:"auth_service"`
}

// AuthService points at the hosted auth provider's admin API, used to
// resolve a checkout customer email to a local user id.
type AuthService struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	ServiceKey string `yaml:"service_key" json:"service_key"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

type Log struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// ApplyEnvOverrides lets deployments inject credentials without editing
// the config file.
func (b *Bootstrap) ApplyEnvOverrides() {
	if b.Stripe == nil {
		b.Stripe = &Stripe{}
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		b.Stripe.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		b.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("DATABASE_SOURCE"); v != "" {
		if b.Data == nil {
			b.Data = &Data{}
		}
		b.Data.Database.Source = v
	}
}

// Validate validates the configuration
func (b *Bootstrap) Validate() error {
	if b.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if b.Server.Http.Addr == "" {
		return fmt.Errorf("server.http.addr is required")
	}
	if b.Data == nil {
		return fmt.Errorf("data configuration is required")
	}
	if b.Data.Database.Source == "" {
		return fmt.Errorf("data.database.source is required")
	}
	if b.Stripe == nil {
		return fmt.Errorf("stripe configuration is required")
	}
	if b.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe.secret_key is required")
	}
	if b.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe.webhook_secret is required")
	}
	if b.Client == nil || b.Client.AuthService == nil || b.Client.AuthService.BaseURL == "" {
		return fmt.Errorf("client.auth_service.base_url is required")
	}
	if b.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	return nil
}
