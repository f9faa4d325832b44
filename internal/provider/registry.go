package provider

import (
	"github.com/lumenhq/courier-backend/internal/config"
	"github.com/lumenhq/courier-backend/internal/model"
)

// BuildRegistry wires one adapter per channel from config. "mock" keeps local
// development off the real relays.
func BuildRegistry(cfg config.Config) Registry {
	registry := Registry{}

	switch cfg.EmailProvider {
	case "mock":
		registry[model.ChannelEmail] = &MockAdapter{AdapterName: "mock_email"}
	default:
		registry[model.ChannelEmail] = &SMTPEmailAdapter{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			FromName: cfg.FromName,
			FromAddr: cfg.FromAddr,
		}
	}

	switch cfg.SMSProvider {
	case "mock":
		registry[model.ChannelSMS] = &MockAdapter{AdapterName: "mock_sms"}
	default:
		registry[model.ChannelSMS] = NewSMSGatewayAdapter(
			cfg.SMSGatewayURL, cfg.SMSGatewayKey, cfg.SMSFromNumber)
	}

	return registry
}
