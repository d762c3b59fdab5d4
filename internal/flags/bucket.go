package flags

// FNV-1a 32-bit parameters. Pinned so that bucket assignments stay stable
// across restarts and re-implementations in other languages.
const (
	bucketSeed  uint32 = 2166136261
	bucketPrime uint32 = 16777619
)

// Bucket maps a (unit id, flag key) pair onto a stable percentile in [0,100).
// A rule with rollout N receives every unit whose bucket is below N.
func Bucket(unitID, flagKey string) int {
	s := unitID + ":" + flagKey
	h := bucketSeed
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= bucketPrime
	}
	return int(h % 100)
}
