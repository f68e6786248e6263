package gateway

import (
	"reflect"
	"testing"
)

func TestShardIDsForClusterSingleCluster(t *testing.T) {
	got := ShardIDsForCluster(4, 1, 0)
	want := []int{0, 1, 2, 3}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestShardIDsForClusterPartitionsEvenly(t *testing.T) {
	cases := []struct {
		clusterID int
		want      []int
	}{
		{0, []int{0, 3, 6}},
		{1, []int{1, 4, 7}},
		{2, []int{2, 5}},
	}

	for _, c := range cases {
		got := ShardIDsForCluster(8, 3, c.clusterID)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("cluster %d: got %v, want %v", c.clusterID, got, c.want)
		}
	}
}
