package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// WebhookPolicy holds the tunables of the webhook pipeline that operators
// may change without a restart.
type WebhookPolicy struct {
	Tolerance         time.Duration `mapstructure:"tolerance"`
	ProcessingTimeout time.Duration `mapstructure:"processingTimeout"`
	LookupTimeout     time.Duration `mapstructure:"lookupTimeout"`
	InflightTTL       time.Duration `mapstructure:"inflightTTL"`
	NotifyTimeout     time.Duration `mapstructure:"notifyTimeout"`
	MaxBodyBytes      int64         `mapstructure:"maxBodyBytes"`
}

func DefaultWebhookPolicy() WebhookPolicy {
	return WebhookPolicy{
		Tolerance:         5 * time.Minute,
		ProcessingTimeout: 8 * time.Second,
		LookupTimeout:     2 * time.Second,
		InflightTTL:       30 * time.Second,
		NotifyTimeout:     10 * time.Second,
		MaxBodyBytes:      1 << 20,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds WebhookPolicy
}

// NewStaticPolicy returns a holder that never reloads.
func NewStaticPolicy(policy WebhookPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("webhook")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/subsync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SUBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWebhookPolicy()
	v.SetDefault("webhook.tolerance", defaults.Tolerance)
	v.SetDefault("webhook.processingTimeout", defaults.ProcessingTimeout)
	v.SetDefault("webhook.lookupTimeout", defaults.LookupTimeout)
	v.SetDefault("webhook.inflightTTL", defaults.InflightTTL)
	v.SetDefault("webhook.notifyTimeout", defaults.NotifyTimeout)
	v.SetDefault("webhook.maxBodyBytes", defaults.MaxBodyBytes)

	configFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		configFound = false
	}

	var policy WebhookPolicy
	if err := v.UnmarshalKey("webhook", &policy); err != nil {
		return nil, err
	}
	if err := validateWebhookPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicy(policy)
	if !configFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated WebhookPolicy
		if err := v.UnmarshalKey("webhook", &updated); err != nil {
			log.Warn("webhook policy reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := validateWebhookPolicy(updated); err != nil {
			log.Warn("invalid webhook policy ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("webhook policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() WebhookPolicy {
	return h.current.Load().(WebhookPolicy)
}

func validateWebhookPolicy(p WebhookPolicy) error {
	if p.Tolerance < 0 {
		return errors.New("webhook.tolerance cannot be negative")
	}
	if p.ProcessingTimeout <= 0 {
		return errors.New("webhook.processingTimeout must be positive")
	}
	if p.LookupTimeout <= 0 {
		return errors.New("webhook.lookupTimeout must be positive")
	}
	if p.LookupTimeout > p.ProcessingTimeout {
		return errors.New("webhook.lookupTimeout cannot exceed webhook.processingTimeout")
	}
	if p.MaxBodyBytes <= 0 {
		return errors.New("webhook.maxBodyBytes must be positive")
	}
	return nil
}
