package configuration

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"infrastructure/errors"
)

const (
	packageName = "configuration"
)

// Config holds the application configuration. It is built once at the entry
// point and passed to every declaration step.
type Config struct {
	Account       string
	Region        string
	CertificateID string
	HostedZoneID  string
	VPCID         string

	DomainName          string
	StackName           string
	Environment         string
	ProfilesPath        string
	UserDataPath        string
	FunctionArchivePath string
	AssetBucket         string
	SubnetID            string
	LogLevel            string

	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string

	CheckInterval     int
	ComparisonTimeout int

	Profile Profile
}

var required = []string{"ACCOUNT", "REGION", "CERTIFICATE_ID", "HOSTED_ZONE_ID", "VPC_ID"}

var (
	accountPattern    = regexp.MustCompile(`^[0-9]{12}$`)
	stackNamePattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]{0,127}$`)
	domainNamePattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)
)

// Initialize reads configuration from the environment and an optional env
// file, then resolves the environment profile. An empty envFile means .env.
func Initialize(envFile string) (*Config, error) {
	logger := zap.L().With(
		zap.String("package", packageName),
		zap.String("function", "Initialize"),
	)

	v := viper.New()

	v.SetDefault("DOMAIN_NAME", "christiandbf.com")
	v.SetDefault("STACK_NAME", "InfrastructureStack")
	v.SetDefault("ENVIRONMENT", ProfileProduction)
	v.SetDefault("USER_DATA_PATH", "./lib/user-data.sh")
	v.SetDefault("FUNCTION_ARCHIVE_PATH", "./lambda/stop.zip")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CHECK_INTERVAL_MINUTES", 5)
	v.SetDefault("COMPARISON_TIMEOUT_SECONDS", 30)

	v.AutomaticEnv()

	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(errors.ErrConfigParse, "error reading config file",
				map[string]interface{}{
					"config_file": envFile,
				}, err)
		}
	} else {
		logger.Info("No .env file found, using environment variables and defaults",
			zap.String("operation", "config_loading"),
		)
	}

	for _, key := range required {
		if v.GetString(key) == "" {
			return nil, errors.New(errors.ErrConfigInvalid, "missing required value "+key,
				map[string]interface{}{
					"config_key": key,
				}, nil)
		}
	}

	account := v.GetString("ACCOUNT")
	if !accountPattern.MatchString(account) {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid ACCOUNT",
			map[string]interface{}{
				"config_key": "ACCOUNT",
				"value":      account,
			}, nil)
	}

	domain := v.GetString("DOMAIN_NAME")
	if !domainNamePattern.MatchString(domain) {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid DOMAIN_NAME",
			map[string]interface{}{
				"config_key": "DOMAIN_NAME",
				"value":      domain,
			}, nil)
	}

	stackName := v.GetString("STACK_NAME")
	if err := ValidateStackName(stackName); err != nil {
		return nil, err
	}

	interval := v.GetInt("CHECK_INTERVAL_MINUTES")
	if interval <= 0 {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid CHECK_INTERVAL_MINUTES",
			map[string]interface{}{
				"config_key": "CHECK_INTERVAL_MINUTES",
				"value":      interval,
			}, nil)
	}

	comparisonTimeout := v.GetInt("COMPARISON_TIMEOUT_SECONDS")
	if comparisonTimeout <= 0 {
		return nil, errors.New(errors.ErrConfigInvalid, "invalid COMPARISON_TIMEOUT_SECONDS",
			map[string]interface{}{
				"config_key": "COMPARISON_TIMEOUT_SECONDS",
				"value":      comparisonTimeout,
			}, nil)
	}

	region := v.GetString("REGION")
	assetBucket := v.GetString("ASSET_BUCKET")
	if assetBucket == "" {
		assetBucket = fmt.Sprintf("cdk-hnb659fds-assets-%s-%s", account, region)
	}

	cfg := &Config{
		Account:             account,
		Region:              region,
		CertificateID:       v.GetString("CERTIFICATE_ID"),
		HostedZoneID:        v.GetString("HOSTED_ZONE_ID"),
		VPCID:               v.GetString("VPC_ID"),
		DomainName:          domain,
		StackName:           stackName,
		Environment:         v.GetString("ENVIRONMENT"),
		ProfilesPath:        v.GetString("PROFILES_PATH"),
		UserDataPath:        v.GetString("USER_DATA_PATH"),
		FunctionArchivePath: v.GetString("FUNCTION_ARCHIVE_PATH"),
		AssetBucket:         assetBucket,
		SubnetID:            v.GetString("SUBNET_ID"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		AccessKeyID:         v.GetString("AWS_ACCESS_KEY_ID"),
		SecretAccessKey:     v.GetString("AWS_SECRET_ACCESS_KEY"),
		EndpointURL:         v.GetString("AWS_ENDPOINT_URL"),
		CheckInterval:       interval,
		ComparisonTimeout:   comparisonTimeout,
	}

	profiles, err := LoadProfiles(cfg.ProfilesPath, cfg.Variables())
	if err != nil {
		return nil, err
	}
	profile, ok := profiles[cfg.Environment]
	if !ok {
		return nil, errors.New(errors.ErrConfigInvalid, "unknown environment",
			map[string]interface{}{
				"config_key": "ENVIRONMENT",
				"value":      cfg.Environment,
			}, nil)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	cfg.Profile = profile

	logger.Info("Configuration loaded successfully",
		zap.String("stack", cfg.StackName),
		zap.String("region", cfg.Region),
		zap.Stringer("profile", cfg.Profile),
		zap.String("operation", "config_complete"),
	)
	return cfg, nil
}

// Variables are the values environment profiles may interpolate.
func (c *Config) Variables() map[string]string {
	return map[string]string{
		"domain":  c.DomainName,
		"account": c.Account,
		"region":  c.Region,
	}
}

// ValidateStackName rejects names CloudFormation would refuse.
func ValidateStackName(name string) error {
	if !stackNamePattern.MatchString(name) {
		return errors.New(errors.ErrConfigInvalid, "invalid STACK_NAME",
			map[string]interface{}{
				"config_key": "STACK_NAME",
				"value":      name,
			}, nil)
	}
	return nil
}
