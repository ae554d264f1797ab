package types

// PartitionStrategy names a built-in partition function.
type PartitionStrategy string

const (
	// StrategyMonthly routes YYYYMMDD values (or timestamps) to YYYYMM partitions
	StrategyMonthly PartitionStrategy = "monthly"

	// StrategyDaily routes YYYYMMDD values (or timestamps) to YYYYMMDD partitions
	StrategyDaily PartitionStrategy = "daily"

	// StrategyIdentity routes each distinct value to its own partition
	StrategyIdentity PartitionStrategy = "identity"

	// StrategyHash routes values by murmur3 hash modulo N
	StrategyHash PartitionStrategy = "hash"

	// StrategyCustom marks a partition function supplied in code
	StrategyCustom PartitionStrategy = "custom"
)

// PartitionConfig declares how one entity's table is partitioned.
type PartitionConfig struct {
	// Entity is the logical entity whose table is partitioned
	Entity string `json:"entity" yaml:"entity"`

	// Attribute is the single attribute the partition function reads
	Attribute string `json:"attribute" yaml:"attribute"`

	// Strategy selects the partition function
	Strategy PartitionStrategy `json:"function" yaml:"function"`

	// HashModulo is the bucket count for StrategyHash
	HashModulo int `json:"modulo,omitempty" yaml:"modulo,omitempty"`
}
