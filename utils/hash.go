package utils

import "hash/fnv"

func Mix64(a, b uint64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(U64ToBytes(a))
	_, _ = h.Write(U64ToBytes(b))
	return h.Sum64()
}

// Shard folds a 64-bit hash into the 32 bits used by sharded maps.
func Shard(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}
