package flags

// StableHash folds s into a 32-bit value using the DJB2 recurrence
// (h = h*33 + b over the UTF-8 bytes). The function is part of the
// cross-process contract: user bucket and variant assignment must not
// change across restarts or hosts, so this must never be replaced with
// a seeded or randomized hash.
func StableHash(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// Bucket maps a user id onto 0..99 for percentage rollouts.
func Bucket(userID string) int {
	return int(StableHash(userID) % 100)
}
