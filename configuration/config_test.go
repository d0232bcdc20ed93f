package configuration_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastructure/configuration"
	"infrastructure/errors"
)

var allKeys = []string{
	"ACCOUNT", "REGION", "CERTIFICATE_ID", "HOSTED_ZONE_ID", "VPC_ID",
	"DOMAIN_NAME", "STACK_NAME", "ENVIRONMENT", "PROFILES_PATH", "USER_DATA_PATH",
	"FUNCTION_ARCHIVE_PATH", "ASSET_BUCKET", "SUBNET_ID", "LOG_LEVEL",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_ENDPOINT_URL",
	"CHECK_INTERVAL_MINUTES", "COMPARISON_TIMEOUT_SECONDS",
}

// clearEnv blanks every key so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

// createTempFile writes content to a file in a fresh temp dir and returns its path
func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func validEnv() map[string]string {
	return map[string]string{
		"ACCOUNT":        "111111111111",
		"REGION":         "us-east-1",
		"CERTIFICATE_ID": "abc-123",
		"HOSTED_ZONE_ID": "Z0123456789",
		"VPC_ID":         "vpc-0abc",
	}
}

func TestInitialize_TableDriven(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		drop       string
		expectErr  errors.ErrorType
		assertions func(*testing.T, *configuration.Config)
	}{
		{
			name: "Valid configuration with defaults",
			env:  validEnv(),
			assertions: func(t *testing.T, cfg *configuration.Config) {
				assert.Equal(t, "111111111111", cfg.Account)
				assert.Equal(t, "us-east-1", cfg.Region)
				assert.Equal(t, "abc-123", cfg.CertificateID)
				assert.Equal(t, "christiandbf.com", cfg.DomainName)
				assert.Equal(t, "InfrastructureStack", cfg.StackName)
				assert.Equal(t, "cdk-hnb659fds-assets-111111111111-us-east-1", cfg.AssetBucket)
				assert.Equal(t, "./lib/user-data.sh", cfg.UserDataPath)
				assert.Equal(t, 5, cfg.CheckInterval)
				assert.Equal(t, configuration.ProfileProduction, cfg.Profile.Name)
				assert.True(t, cfg.Profile.Schedule)
			},
		},
		{
			name: "Website environment",
			env: merge(validEnv(), map[string]string{
				"ENVIRONMENT":  "website",
				"ASSET_BUCKET": "my-assets",
				"DOMAIN_NAME":  "example.org",
			}),
			assertions: func(t *testing.T, cfg *configuration.Config) {
				assert.Equal(t, "my-assets", cfg.AssetBucket)
				assert.Equal(t, "example.org", cfg.DomainName)
				assert.False(t, cfg.Profile.Compute)
				assert.False(t, cfg.Profile.Network)
			},
		},
		{name: "Missing hosted zone", env: validEnv(), drop: "HOSTED_ZONE_ID", expectErr: errors.ErrConfigInvalid},
		{name: "Missing account", env: validEnv(), drop: "ACCOUNT", expectErr: errors.ErrConfigInvalid},
		{name: "Missing vpc", env: validEnv(), drop: "VPC_ID", expectErr: errors.ErrConfigInvalid},
		{name: "Malformed account", env: merge(validEnv(), map[string]string{"ACCOUNT": "12ab"}), expectErr: errors.ErrConfigInvalid},
		{name: "Malformed domain", env: merge(validEnv(), map[string]string{"DOMAIN_NAME": "not a domain"}), expectErr: errors.ErrConfigInvalid},
		{name: "Unknown environment", env: merge(validEnv(), map[string]string{"ENVIRONMENT": "staging"}), expectErr: errors.ErrConfigInvalid},
		{name: "Invalid interval", env: merge(validEnv(), map[string]string{"CHECK_INTERVAL_MINUTES": "-1"}), expectErr: errors.ErrConfigInvalid},
		{name: "Missing profiles file", env: merge(validEnv(), map[string]string{"PROFILES_PATH": "/does/not/exist.hcl"}), expectErr: errors.ErrInputRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				if k == tt.drop {
					continue
				}
				t.Setenv(k, v)
			}

			cfg, err := configuration.Initialize(filepath.Join(t.TempDir(), ".env"))
			if tt.expectErr != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expectErr), "got %v", err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.assertions(t, cfg)
		})
	}
}

func TestInitialize_WithTempEnvFile(t *testing.T) {
	clearEnv(t)
	envFilePath := createTempFile(t, ".env", `
ACCOUNT=222222222222
REGION=eu-west-1
CERTIFICATE_ID=cert-1
HOSTED_ZONE_ID=ZFILE
VPC_ID=vpc-file
AWS_ACCESS_KEY_ID=TESTKEY
AWS_SECRET_ACCESS_KEY=TESTSECRET
LOG_LEVEL=warn
`)

	cfg, err := configuration.Initialize(envFilePath)
	require.NoError(t, err)
	assert.Equal(t, "222222222222", cfg.Account)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "ZFILE", cfg.HostedZoneID)
	assert.Equal(t, "TESTKEY", cfg.AccessKeyID)
	assert.Equal(t, "TESTSECRET", cfg.SecretAccessKey)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestInitialize_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	envFilePath := createTempFile(t, ".env", `
ACCOUNT=222222222222
REGION=eu-west-1
CERTIFICATE_ID=cert-1
HOSTED_ZONE_ID=ZFILE
VPC_ID=vpc-file
`)
	t.Setenv("REGION", "ap-south-1")

	cfg, err := configuration.Initialize(envFilePath)
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", cfg.Region)
}

func TestInitialize_WithProfilesFile(t *testing.T) {
	clearEnv(t)
	for k, v := range validEnv() {
		t.Setenv(k, v)
	}
	profiles := createTempFile(t, "profiles.hcl", `
environment "production" {
  network  = true
  compute  = true
  schedule = false

  service_records = ["services.${domain}"]

  services {
    instance_type = "t3a.small"
    disk_size_gib = 32
  }

  work {
    instance_type = "t3.medium"
    disk_size_gib = 64
  }
}
`)
	t.Setenv("PROFILES_PATH", profiles)

	cfg, err := configuration.Initialize(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.False(t, cfg.Profile.Schedule)
	assert.Equal(t, []string{"services.christiandbf.com"}, cfg.Profile.ServiceRecords)
	assert.Equal(t, "t3a.small", cfg.Profile.Services.InstanceType)
	assert.Equal(t, 64, cfg.Profile.Work.DiskSizeGiB)
}

func merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func TestValidateStackName(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{name: "default", value: "InfrastructureStack", valid: true},
		{name: "with hyphen", value: "infra-prod-2", valid: true},
		{name: "leading digit", value: "2infra"},
		{name: "underscore", value: "infra_prod"},
		{name: "space", value: "infra prod"},
		{name: "empty", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := configuration.ValidateStackName(tt.value)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
		})
	}
}

func TestInitializeFunction(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		want      *configuration.FunctionConfig
		expectErr bool
	}{
		{
			name: "single instance with default level",
			env:  map[string]string{"INSTANCE_ID": "i-work", "AWS_REGION": "us-east-1", "LOG_LEVEL": ""},
			want: &configuration.FunctionConfig{LogLevel: "info", Region: "us-east-1", InstanceIDs: []string{"i-work"}},
		},
		{
			name: "comma separated instances",
			env:  map[string]string{"INSTANCE_ID": "i-a, i-b,,", "AWS_REGION": "eu-west-1", "LOG_LEVEL": "debug"},
			want: &configuration.FunctionConfig{LogLevel: "debug", Region: "eu-west-1", InstanceIDs: []string{"i-a", "i-b"}},
		},
		{
			name:      "missing instance id",
			env:       map[string]string{"INSTANCE_ID": "", "AWS_REGION": "us-east-1", "LOG_LEVEL": ""},
			expectErr: true,
		},
		{
			name:      "only separators",
			env:       map[string]string{"INSTANCE_ID": " , ", "AWS_REGION": "us-east-1", "LOG_LEVEL": ""},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := configuration.InitializeFunction()
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}
