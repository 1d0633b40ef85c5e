package utils

import "hash/fnv"

// LockKey derives a non-negative advisory lock key from a migration name.
func LockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
