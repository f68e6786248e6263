package gateway

// ShardIDsForCluster returns the shard IDs this process is responsible
// for when shardCount total shards are partitioned evenly across
// clusterCount processes (SPEC_FULL.md §4.7, supplementing spec.md with
// the teacher's multi-cluster deployment model). Shard i belongs to
// cluster i % clusterCount, so a deployment can scale clusters
// independently of shard count without reshuffling existing shard-to-
// session assignments.
func ShardIDsForCluster(shardCount, clusterCount, clusterID int) []int {
	if clusterCount <= 1 {
		ids := make([]int, shardCount)
		for i := range ids {
			ids[i] = i
		}

		return ids
	}

	var ids []int

	for i := 0; i < shardCount; i++ {
		if i%clusterCount == clusterID {
			ids = append(ids, i)
		}
	}

	return ids
}
