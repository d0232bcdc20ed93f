package configuration

import (
	"strings"

	"github.com/spf13/viper"

	"infrastructure/errors"
)

// FunctionConfig is what the scheduled stop function reads from its
// environment.
type FunctionConfig struct {
	LogLevel    string
	Region      string
	InstanceIDs []string
}

// InitializeFunction reads the stop function's environment. INSTANCE_ID is a
// comma separated list and must name at least one instance.
func InitializeFunction() (*FunctionConfig, error) {
	v := viper.New()
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()

	var ids []string
	for _, id := range strings.Split(v.GetString("INSTANCE_ID"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New(errors.ErrConfigInvalid, "missing required value INSTANCE_ID",
			map[string]interface{}{
				"config_key": "INSTANCE_ID",
			}, nil)
	}

	return &FunctionConfig{
		LogLevel:    v.GetString("LOG_LEVEL"),
		Region:      v.GetString("AWS_REGION"),
		InstanceIDs: ids,
	}, nil
}
