package stack

import (
	"infrastructure/configuration"
	"infrastructure/graph"
	"infrastructure/resources"
)

// Logical IDs of the instances.
const (
	ServicesInstanceID graph.ID = "ServicesEc2"
	WorkInstanceID     graph.ID = "WorkEc2"
	MachineImageID     graph.ID = "MachineImage"
)

const rootDevice = "/dev/sda1"

type hostNodes struct {
	services *graph.Node
	work     *graph.Node
}

func (b *builder) compute(net networkNodes, store storageNodes) hostNodes {
	image := b.parameter(MachineImageID, &resources.MachineImage{
		ParameterName: resources.UbuntuFocalImageParameter,
	})

	role := b.resource("ServicesEc2Role", &resources.Role{
		AssumedBy: resources.PrincipalEC2,
		ManagedPolicies: []string{
			resources.ManagedPolicyARN("AmazonSSMManagedInstanceCore"),
			resources.ManagedPolicyARN("CloudWatchLogsFullAccess"),
		},
	})
	grant := b.resource("ServicesEc2RoleDefaultPolicy", &resources.Policy{
		Name: "ServicesEc2RoleDefaultPolicy",
		Statements: []resources.Statement{{
			Actions:   resources.BucketReadWriteActions,
			Resources: resources.BucketARN(store.backup.Attr("Arn", graph.EdgeAttribute)),
		}},
		Roles: []any{role.Ref(graph.EdgeAttachment)},
	})
	profile := b.resource("ServicesEc2InstanceProfile", &resources.InstanceProfile{
		Role: role.Ref(graph.EdgeReference),
	})

	services := b.resource(ServicesInstanceID, b.instance(ServicesInstanceID, image, b.profile.Services, profile, net.web, net.vpn))
	// The instance must not boot before its role can reach the backup bucket.
	b.dependsOn(services, grant)

	work := b.resource(WorkInstanceID, b.instance(WorkInstanceID, image, b.profile.Work, nil, net.ssh))

	b.output("WorkInstanceId", "Instance toggled by the stop schedule", work.Ref(graph.EdgeReference))
	return hostNodes{services: services, work: work}
}

func (b *builder) instance(id graph.ID, image *graph.Node, host *configuration.HostProfile, profile *graph.Node, groups ...*graph.Node) *resources.Instance {
	inst := &resources.Instance{
		Name:         b.cfg.StackName + "/" + string(id),
		Image:        image.Ref(graph.EdgeReference),
		InstanceType: host.InstanceType,
		KeyName:      host.KeyName,
		Subnet:       b.inputs.SubnetID,
		UserData:     b.inputs.UserData,
		BlockDevices: []resources.BlockDevice{{
			DeviceName: rootDevice,
			SizeGiB:    host.DiskSizeGiB,
			Encrypted:  host.Encrypted,
			VolumeType: host.VolumeType,
		}},
	}
	for _, sg := range groups {
		inst.SecurityGroups = append(inst.SecurityGroups, sg.Attr("GroupId", graph.EdgeAttachment))
	}
	if profile != nil {
		inst.Profile = profile.Ref(graph.EdgeReference)
	}
	return inst
}
