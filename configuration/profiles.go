package configuration

import (
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"infrastructure/errors"
)

// Built-in environment names.
const (
	ProfileProduction = "production"
	ProfileWebsite    = "website"
)

// ProfileFile is the root of an environments file.
type ProfileFile struct {
	Environments []Profile `hcl:"environment,block"`
}

// Profile decides which parts of the stack an environment declares and how
// its hosts are sized.
type Profile struct {
	Name           string           `hcl:"name,label"`
	Network        bool             `hcl:"network,optional"`
	Compute        bool             `hcl:"compute,optional"`
	Schedule       bool             `hcl:"schedule,optional"`
	ServiceRecords []string         `hcl:"service_records,optional"`
	Services       *HostProfile     `hcl:"services,block"`
	Work           *HostProfile     `hcl:"work,block"`
	StopSchedule   *ScheduleProfile `hcl:"stop_schedule,block"`
}

// HostProfile sizes one instance.
type HostProfile struct {
	InstanceType string `hcl:"instance_type,optional"`
	KeyName      string `hcl:"key_name,optional"`
	DiskSizeGiB  int    `hcl:"disk_size_gib,optional"`
	Encrypted    bool   `hcl:"encrypted,optional"`
	VolumeType   string `hcl:"volume_type,optional"`
}

// ScheduleProfile is a daily UTC wall time.
type ScheduleProfile struct {
	Hour   int `hcl:"hour"`
	Minute int `hcl:"minute"`
}

// DefaultProfiles returns the built-in environments.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileProduction: {
			Name:           ProfileProduction,
			Network:        true,
			Compute:        true,
			Schedule:       true,
			ServiceRecords: []string{"services", "reign", "api.reign"},
			Services: &HostProfile{
				InstanceType: "t3a.micro",
				KeyName:      "services-ec2",
				DiskSizeGiB:  16,
			},
			Work: &HostProfile{
				InstanceType: "t3.large",
				KeyName:      "work-ec2",
				DiskSizeGiB:  128,
				Encrypted:    true,
				VolumeType:   "gp3",
			},
			StopSchedule: &ScheduleProfile{Hour: 4, Minute: 0},
		},
		ProfileWebsite: {
			Name: ProfileWebsite,
		},
	}
}

// ParseProfiles decodes an environments file. Expressions may use the
// variables domain, account and region.
func ParseProfiles(filename string, src []byte, vars map[string]string) ([]Profile, error) {
	values := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		values[k] = cty.StringVal(v)
	}
	ctx := &hcl.EvalContext{Variables: values}

	var file ProfileFile
	if err := hclsimple.Decode(filename, src, ctx, &file); err != nil {
		return nil, errors.New(errors.ErrConfigParse, "error decoding environment profiles",
			map[string]interface{}{
				"profiles_file": filename,
			}, err)
	}

	seen := make(map[string]struct{}, len(file.Environments))
	for _, p := range file.Environments {
		if _, dup := seen[p.Name]; dup {
			return nil, errors.New(errors.ErrConfigInvalid, "duplicate environment profile",
				map[string]interface{}{
					"profiles_file": filename,
					"environment":   p.Name,
				}, nil)
		}
		seen[p.Name] = struct{}{}
	}
	return file.Environments, nil
}

// LoadProfiles merges the built-in environments with those from path, if set.
// A profile in the file replaces the built-in of the same name.
func LoadProfiles(path string, vars map[string]string) (map[string]Profile, error) {
	logger := zap.L().With(
		zap.String("package", packageName),
		zap.String("function", "LoadProfiles"),
	)

	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ErrInputRead, "error reading environment profiles",
			map[string]interface{}{
				"profiles_file": path,
			}, err)
	}
	parsed, err := ParseProfiles(path, src, vars)
	if err != nil {
		return nil, err
	}
	for _, p := range parsed {
		profiles[p.Name] = p
	}

	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	logger.Info("Environment profiles loaded",
		zap.String("path", path),
		zap.Strings("environments", names),
		zap.String("operation", "profiles_loading"),
	)
	return profiles, nil
}

// Validate checks the profile is internally consistent.
func (p Profile) Validate() error {
	invalid := func(msg string, ctx map[string]interface{}) error {
		ctx["environment"] = p.Name
		return errors.New(errors.ErrConfigInvalid, msg, ctx, nil)
	}

	if p.Compute && !p.Network {
		return invalid("compute requires network", map[string]interface{}{})
	}
	if p.Schedule && !p.Compute {
		return invalid("schedule requires compute", map[string]interface{}{})
	}
	if p.Compute {
		for role, host := range map[string]*HostProfile{"services": p.Services, "work": p.Work} {
			if host == nil {
				return invalid("missing host profile", map[string]interface{}{"host": role})
			}
			if host.InstanceType == "" {
				return invalid("missing instance_type", map[string]interface{}{"host": role})
			}
			if host.DiskSizeGiB <= 0 {
				return invalid("invalid disk_size_gib", map[string]interface{}{"host": role, "value": host.DiskSizeGiB})
			}
		}
	}
	if p.Schedule {
		s := p.StopSchedule
		if s == nil {
			return invalid("missing stop_schedule", map[string]interface{}{})
		}
		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return invalid("invalid stop_schedule", map[string]interface{}{"hour": s.Hour, "minute": s.Minute})
		}
	}
	return nil
}

func (p Profile) String() string {
	return fmt.Sprintf("%s(network=%t compute=%t schedule=%t)", p.Name, p.Network, p.Compute, p.Schedule)
}
