package resources

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrastructure/graph"
)

func TestIngressRuleValidate(t *testing.T) {
	tests := []struct {
		name      string
		rule      IngressRule
		expectErr bool
		ipv6      bool
	}{
		{name: "ipv4 http", rule: IngressRule{Source: AnyIPv4, Protocol: ProtocolTCP, Port: 80}},
		{name: "ipv6 wireguard", rule: IngressRule{Source: AnyIPv6, Protocol: ProtocolUDP, Port: 51820}, ipv6: true},
		{name: "lowest port", rule: IngressRule{Source: "10.0.0.0/8", Protocol: ProtocolTCP, Port: 0}},
		{name: "highest port", rule: IngressRule{Source: "10.0.0.0/8", Protocol: ProtocolTCP, Port: 65535}},
		{name: "empty source", rule: IngressRule{Protocol: ProtocolTCP, Port: 22}, expectErr: true},
		{name: "not a cidr", rule: IngressRule{Source: "anywhere", Protocol: ProtocolTCP, Port: 22}, expectErr: true},
		{name: "bad protocol", rule: IngressRule{Source: AnyIPv4, Protocol: "sctp", Port: 22}, expectErr: true},
		{name: "port too high", rule: IngressRule{Source: AnyIPv4, Protocol: ProtocolTCP, Port: 65536}, expectErr: true},
		{name: "negative port", rule: IngressRule{Source: AnyIPv4, Protocol: ProtocolTCP, Port: -1}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.ipv6, tt.rule.IPv6())
		})
	}
}

func TestSecurityGroupProperties(t *testing.T) {
	sg := &SecurityGroup{Name: "WebExternalAccess", Description: "web", VPC: "vpc-123", AllowAllOutbound: true}
	sg.AddIngressRule(IngressRule{Source: AnyIPv4, Protocol: ProtocolTCP, Port: 80, Description: "http"})
	sg.AddIngressRule(IngressRule{Source: AnyIPv6, Protocol: ProtocolTCP, Port: 80, Description: "http"})
	require.NoError(t, sg.Validate())

	props := sg.Properties()
	ingress := props["SecurityGroupIngress"].([]any)
	require.Len(t, ingress, 2)
	assert.Equal(t, AnyIPv4, ingress[0].(map[string]any)["CidrIp"])
	assert.Equal(t, AnyIPv6, ingress[1].(map[string]any)["CidrIpv6"])

	egress := props["SecurityGroupEgress"].([]any)
	assert.Equal(t, ProtocolAll, egress[0].(map[string]any)["IpProtocol"])

	rules := sg.IngressRules()
	rules[0].Port = 1
	assert.Equal(t, 80, sg.IngressRules()[0].Port, "returned rules must be a copy")
}

func TestSecurityGroupWithoutRules(t *testing.T) {
	sg := &SecurityGroup{Name: "SshAccess", VPC: "vpc-123", AllowAllOutbound: true}
	require.NoError(t, sg.Validate())
	_, ok := sg.Properties()["SecurityGroupIngress"]
	assert.False(t, ok)

	assert.Error(t, (&SecurityGroup{Name: "NoVpc"}).Validate())
}

func TestBucket(t *testing.T) {
	b := &Bucket{Name: "backup.christiandbf.com", PublicAccess: BlockAll, Removal: RemovalDestroy}
	require.NoError(t, b.Validate())
	assert.True(t, b.PublicAccess.FullyBlocked())
	assert.Equal(t, "Delete", b.DeletionPolicy())

	partial := BlockAll
	partial.RestrictPublicBuckets = false
	assert.False(t, partial.FullyBlocked())

	assert.Equal(t, "Retain", (&Bucket{Name: "x"}).DeletionPolicy())
	assert.Error(t, (&Bucket{Name: "Upper_Case"}).Validate())
}

func TestInstance(t *testing.T) {
	script := []byte("#!/bin/bash\necho hello\n")
	inst := &Instance{
		Name:           "WorkEc2",
		Image:          graph.Ref("MachineImage", graph.EdgeReference),
		InstanceType:   "t3.large",
		KeyName:        "work-ec2",
		SecurityGroups: []any{graph.Attr("SshAccessSecurityGroup", "GroupId", graph.EdgeAttachment)},
		UserData:       script,
		BlockDevices:   []BlockDevice{{DeviceName: "/dev/sda1", SizeGiB: 128, Encrypted: true, VolumeType: VolumeGP3}},
	}
	require.NoError(t, inst.Validate())

	props := inst.Properties()
	decoded, err := base64.StdEncoding.DecodeString(props["UserData"].(string))
	require.NoError(t, err)
	assert.Equal(t, script, decoded)

	ebs := props["BlockDeviceMappings"].([]any)[0].(map[string]any)["Ebs"].(map[string]any)
	assert.Equal(t, 128, ebs["VolumeSize"])
	assert.Equal(t, true, ebs["Encrypted"])
	assert.Equal(t, VolumeGP3, ebs["VolumeType"])

	noGroups := *inst
	noGroups.SecurityGroups = nil
	assert.Error(t, noGroups.Validate())

	noImage := *inst
	noImage.Image = nil
	assert.Error(t, noImage.Validate())

	badDisk := *inst
	badDisk.BlockDevices = []BlockDevice{{DeviceName: "/dev/sda1", SizeGiB: 0}}
	assert.Error(t, badDisk.Validate())
}

func TestRecordSetFQDN(t *testing.T) {
	tests := []struct {
		name     string
		record   string
		zone     string
		expected string
	}{
		{name: "apex", record: "", zone: "christiandbf.com", expected: "christiandbf.com."},
		{name: "relative", record: "services", zone: "christiandbf.com", expected: "services.christiandbf.com."},
		{name: "qualified without dot", record: "api.reign.christiandbf.com", zone: "christiandbf.com", expected: "api.reign.christiandbf.com."},
		{name: "qualified with dot", record: "reign.christiandbf.com.", zone: "christiandbf.com", expected: "reign.christiandbf.com."},
		{name: "zone with dot", record: "services", zone: "christiandbf.com.", expected: "services.christiandbf.com."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RecordSet{Name: tt.record, ZoneName: tt.zone}
			assert.Equal(t, tt.expected, r.FQDN())
		})
	}
}

func TestRecordSetTargetsAreExclusive(t *testing.T) {
	zone := graph.Ref("HostedZone", graph.EdgeScope)
	alias := &AliasTarget{DNSName: "d123.cloudfront.net", HostedZoneID: CloudFrontHostedZoneID}

	tests := []struct {
		name      string
		ips       []any
		alias     *AliasTarget
		expectErr bool
	}{
		{name: "ip only", ips: []any{"1.2.3.4"}},
		{name: "alias only", alias: alias},
		{name: "both", ips: []any{"1.2.3.4"}, alias: alias, expectErr: true},
		{name: "neither", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RecordSet{Zone: zone, ZoneName: "christiandbf.com", Kind: RecordA, IPs: tt.ips, Alias: tt.alias}
			err := r.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecordSetProperties(t *testing.T) {
	r := &RecordSet{Zone: "Z1", ZoneName: "christiandbf.com", Name: "services", Kind: RecordA, IPs: []any{"1.2.3.4"}}
	props := r.Properties()
	assert.Equal(t, "1800", props["TTL"])
	assert.Equal(t, []any{"1.2.3.4"}, props["ResourceRecords"])
	_, hasAlias := props["AliasTarget"]
	assert.False(t, hasAlias)

	a := &RecordSet{Zone: "Z1", ZoneName: "christiandbf.com", Kind: RecordAAAA,
		Alias: &AliasTarget{DNSName: "d.cloudfront.net", HostedZoneID: CloudFrontHostedZoneID}}
	props = a.Properties()
	_, hasTTL := props["TTL"]
	assert.False(t, hasTTL)
	assert.Equal(t, "AAAA", props["Type"])
}

func TestCertificateARN(t *testing.T) {
	c := &Certificate{Region: "us-east-1", Account: "111111111111", ID: "abc-123"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "arn:aws:acm:us-east-1:111111111111:certificate/abc-123", c.ARN())

	v, ok := c.Literal("")
	assert.True(t, ok)
	assert.Equal(t, c.ARN(), v)

	assert.Error(t, (&Certificate{Region: "us-east-1", Account: "1111", ID: "abc"}).Validate())
	assert.Error(t, (&Certificate{Region: "us-east-1", Account: "111111111111"}).Validate())
}

func TestCronExpression(t *testing.T) {
	c := Daily(4, 0)
	assert.Equal(t, "cron(0 4 * * ? *)", c.Expression())
	assert.Error(t, Daily(24, 0).Validate())
	assert.Error(t, Daily(4, 60).Validate())
}

func TestCronFiresOncePerDayInUTC(t *testing.T) {
	c := Daily(4, 0)
	tokyo := time.FixedZone("UTC+9", 9*60*60)

	tests := []struct {
		name     string
		from     time.Time
		expected time.Time
	}{
		{
			name:     "before firing time",
			from:     time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly at firing time",
			from:     time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 3, 11, 4, 0, 0, 0, time.UTC),
		},
		{
			name:     "offset location",
			from:     time.Date(2024, 3, 10, 14, 0, 0, 0, tokyo),
			expected: time.Date(2024, 3, 11, 4, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := c.Next(tt.from)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(next), "got %s", next)
			assert.Equal(t, time.UTC, next.Location())
		})
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, tokyo)
	fired := 0
	cursor := start
	for {
		next, err := c.Next(cursor)
		require.NoError(t, err)
		if !next.Before(start.Add(24 * time.Hour)) {
			break
		}
		fired++
		cursor = next
	}
	assert.Equal(t, 1, fired)
}

func TestFunctionAndRule(t *testing.T) {
	fn := &Function{
		Code:        CodeLocation{Bucket: "assets", Key: "abc.zip"},
		Handler:     HandlerBootstrap,
		Runtime:     RuntimeProvidedAL2023,
		Role:        graph.Attr("StopLambdaRole", "Arn", graph.EdgeAttribute),
		Environment: map[string]any{"INSTANCE_ID": graph.Ref("WorkEc2", graph.EdgeReference)},
	}
	require.NoError(t, fn.Validate())
	assert.Contains(t, fn.Properties(), "Environment")
	assert.Error(t, (&Function{Handler: "h", Runtime: "r"}).Validate())

	rule := &EventRule{Schedule: Daily(4, 0), Targets: []EventTarget{{ID: "Target0", ARN: "arn"}}}
	require.NoError(t, rule.Validate())
	assert.Equal(t, "cron(0 4 * * ? *)", rule.Properties()["ScheduleExpression"])
	assert.Error(t, (&EventRule{Schedule: Daily(4, 0)}).Validate())
}

func TestPolicyValidate(t *testing.T) {
	p := &Policy{
		Name:       "StopLambdaPolicy",
		Statements: []Statement{{Actions: []string{"ec2:StopInstances"}, Resources: []any{"arn"}}},
		Roles:      []any{"role"},
	}
	require.NoError(t, p.Validate())

	doc := p.Properties()["PolicyDocument"].(map[string]any)
	stmt := doc["Statement"].([]any)[0].(map[string]any)
	assert.Equal(t, "Allow", stmt["Effect"])
	assert.Equal(t, "ec2:StopInstances", stmt["Action"])

	assert.Error(t, (&Policy{Name: "p", Roles: []any{"r"}}).Validate())
	assert.Error(t, (&Policy{Name: "p", Statements: p.Statements}).Validate())
}

func TestInstanceARN(t *testing.T) {
	arn := InstanceARN("us-east-1", "111111111111", graph.Ref("WorkEc2", graph.EdgeReference))
	var refs []graph.Reference
	graph.Walk(arn, func(r graph.Reference) { refs = append(refs, r) })
	require.Len(t, refs, 1)
	assert.Equal(t, graph.ID("WorkEc2"), refs[0].Target)
	assert.Equal(t, "arn:aws:ec2:us-east-1:111111111111:instance/", arn.Parts[0])
}
