package resources

import (
	"encoding/base64"
	"fmt"
)

// UbuntuFocalImageParameter is the public SSM parameter holding the current
// Ubuntu 20.04 amd64 AMI.
const UbuntuFocalImageParameter = "/aws/service/canonical/ubuntu/server/focal/stable/current/amd64/hvm/ebs-gp2/ami-id"

// MachineImage resolves an AMI ID from an SSM parameter at apply time.
type MachineImage struct {
	ParameterName string
}

func (m *MachineImage) Type() string {
	return "AWS::SSM::Parameter::Value<AWS::EC2::Image::Id>"
}

func (m *MachineImage) Properties() map[string]any {
	return map[string]any{"Default": m.ParameterName}
}

func (m *MachineImage) Validate() error {
	if m.ParameterName == "" {
		return fmt.Errorf("machine image parameter name is empty")
	}
	return nil
}

const (
	VolumeGP2 = "gp2"
	VolumeGP3 = "gp3"
)

// BlockDevice is an EBS volume mapped at boot.
type BlockDevice struct {
	DeviceName string
	SizeGiB    int
	Encrypted  bool
	VolumeType string
}

func (d BlockDevice) properties() map[string]any {
	ebs := map[string]any{"VolumeSize": d.SizeGiB}
	if d.Encrypted {
		ebs["Encrypted"] = true
	}
	if d.VolumeType != "" {
		ebs["VolumeType"] = d.VolumeType
	}
	return map[string]any{
		"DeviceName": d.DeviceName,
		"Ebs":        ebs,
	}
}

// Instance is a virtual machine.
type Instance struct {
	Name           string
	Image          any
	InstanceType   string
	KeyName        string
	SecurityGroups []any
	Profile        any
	Subnet         string
	UserData       []byte
	BlockDevices   []BlockDevice
}

func (i *Instance) Type() string { return "AWS::EC2::Instance" }

func (i *Instance) Properties() map[string]any {
	props := map[string]any{
		"ImageId":          i.Image,
		"InstanceType":     i.InstanceType,
		"SecurityGroupIds": i.SecurityGroups,
		"Tags":             []any{map[string]any{"Key": "Name", "Value": i.Name}},
	}
	if i.KeyName != "" {
		props["KeyName"] = i.KeyName
	}
	if i.Profile != nil {
		props["IamInstanceProfile"] = i.Profile
	}
	if i.Subnet != "" {
		props["SubnetId"] = i.Subnet
	}
	if len(i.UserData) > 0 {
		props["UserData"] = base64.StdEncoding.EncodeToString(i.UserData)
	}
	if len(i.BlockDevices) > 0 {
		devices := make([]any, 0, len(i.BlockDevices))
		for _, d := range i.BlockDevices {
			devices = append(devices, d.properties())
		}
		props["BlockDeviceMappings"] = devices
	}
	return props
}

func (i *Instance) Validate() error {
	if i.Image == nil {
		return fmt.Errorf("instance %s: machine image is not set", i.Name)
	}
	if i.InstanceType == "" {
		return fmt.Errorf("instance %s: instance type is empty", i.Name)
	}
	if len(i.SecurityGroups) == 0 {
		return fmt.Errorf("instance %s: at least one security group is required", i.Name)
	}
	for _, d := range i.BlockDevices {
		if d.SizeGiB <= 0 {
			return fmt.Errorf("instance %s: block device %s has size %d", i.Name, d.DeviceName, d.SizeGiB)
		}
		switch d.VolumeType {
		case "", VolumeGP2, VolumeGP3:
		default:
			return fmt.Errorf("instance %s: unsupported volume type %q", i.Name, d.VolumeType)
		}
	}
	return nil
}

// ElasticIP is a static public address allocation.
type ElasticIP struct{}

func (e *ElasticIP) Type() string               { return "AWS::EC2::EIP" }
func (e *ElasticIP) Properties() map[string]any { return map[string]any{"Domain": "vpc"} }

// EIPAssociation binds one address allocation to one instance.
type EIPAssociation struct {
	Allocation any
	Instance   any
}

func (a *EIPAssociation) Type() string { return "AWS::EC2::EIPAssociation" }

func (a *EIPAssociation) Properties() map[string]any {
	return map[string]any{
		"AllocationId": a.Allocation,
		"InstanceId":   a.Instance,
	}
}

func (a *EIPAssociation) Validate() error {
	if a.Allocation == nil || a.Instance == nil {
		return fmt.Errorf("eip association needs both an allocation and an instance")
	}
	return nil
}
