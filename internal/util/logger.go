package util

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger initializes the global logger
func InitLogger(env string) error {
	var err error
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err = config.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// RedactedEmail builds a zap field carrying an email address masked to its
// first character and domain, so lead contact data doesn't land in log
// aggregation unredacted.
func RedactedEmail(key, value string) zap.Field {
	return zap.String(key, maskEmail(value))
}

// RedactedPhone builds a zap field carrying a phone number masked to its
// last four digits.
func RedactedPhone(key, value string) zap.Field {
	return zap.String(key, maskPhone(value))
}

func maskEmail(v string) string {
	at := strings.IndexByte(v, '@')
	if at <= 0 || at == len(v)-1 {
		return "***"
	}
	return v[:1] + "***" + v[at:]
}

func maskPhone(v string) string {
	var digits []byte
	for i := 0; i < len(v); i++ {
		if v[i] >= '0' && v[i] <= '9' {
			digits = append(digits, v[i])
		}
	}
	if len(digits) < 4 {
		return "***"
	}
	return "***-" + string(digits[len(digits)-4:])
}
