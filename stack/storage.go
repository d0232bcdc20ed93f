package stack

import (
	"infrastructure/graph"
	"infrastructure/resources"
)

// Logical IDs of the buckets. Both must stay fully blocked.
const (
	BackupBucketID  graph.ID = "BackupBucket"
	WebsiteBucketID graph.ID = "MyWebsiteBucket"
)

type storageNodes struct {
	backup  *graph.Node
	website *graph.Node
}

// storage declares the buckets. Name collisions are left to the engine.
func (b *builder) storage() storageNodes {
	domain := b.cfg.DomainName
	return storageNodes{
		backup: b.resource(BackupBucketID, &resources.Bucket{
			Name:         "backup." + domain,
			PublicAccess: resources.BlockAll,
			Removal:      resources.RemovalDestroy,
		}),
		website: b.resource(WebsiteBucketID, &resources.Bucket{
			Name:         domain,
			PublicAccess: resources.BlockAll,
			Removal:      resources.RemovalDestroy,
		}),
	}
}
