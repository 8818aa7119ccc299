package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/vrischmann/envconfig"
)

// Settings is the process configuration, read from the environment.
type Settings struct {
	HomePath     string `envconfig:"GRIDBOOT_HOME_PATH,default=gridboot"`
	InstanceName string `envconfig:"GRIDBOOT_INSTANCE_NAME,default=gridboot"`
	// Attributes are gossiped with the node, e.g. GRIDBOOT_ATTRIBUTES=zone=a,rack=r1.
	Attributes Attributes `envconfig:"GRIDBOOT_ATTRIBUTES,optional"`

	LogLevel  string `envconfig:"GRIDBOOT_LOG_LEVEL,default=info"`
	LogFormat string `envconfig:"GRIDBOOT_LOG_FORMAT,default=text"`

	StartTimeout     time.Duration `envconfig:"GRIDBOOT_START_TIMEOUT,default=2m"`
	StopTimeout      time.Duration `envconfig:"GRIDBOOT_STOP_TIMEOUT,default=30s"`
	OperationTimeout time.Duration `envconfig:"GRIDBOOT_OPERATION_TIMEOUT,default=60s"`
}

func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Init(&s); err != nil {
		return Settings{}, domain.NewConfigurationError(
			"failed to read settings from environment",
			err,
			domain.WithComponent("settings.Load"),
		)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch {
	case s.HomePath == "":
		return invalid("GRIDBOOT_HOME_PATH is required")
	case s.InstanceName == "":
		return invalid("GRIDBOOT_INSTANCE_NAME is required")
	case s.StartTimeout <= 0:
		return invalid("GRIDBOOT_START_TIMEOUT must be positive")
	case s.StopTimeout <= 0:
		return invalid("GRIDBOOT_STOP_TIMEOUT must be positive")
	case s.OperationTimeout <= 0:
		return invalid("GRIDBOOT_OPERATION_TIMEOUT must be positive")
	}
	return nil
}

func invalid(message string) error {
	return domain.NewConfigurationError(message, nil, domain.WithComponent("settings.Validate"))
}

// Attributes is a comma separated list of key=value pairs.
type Attributes map[string]string

func (a *Attributes) Unmarshal(s string) error {
	attrs := make(Attributes)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("attribute %q is not key=value", pair)
		}
		attrs[key] = strings.TrimSpace(value)
	}
	*a = attrs
	return nil
}

// Map converts the attributes into node user attributes.
func (a Attributes) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
