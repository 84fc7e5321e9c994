package ofcons

// MaxFaulty returns the maximum number of crashed nodes that a system of n nodes tolerates.
func MaxFaulty(n int) int {
	return (n - 1) / 2
}

// QuorumSize returns the number of responses that make up a strict majority of n nodes.
func QuorumSize(n int) int {
	return n/2 + 1
}

// IsQuorum returns true if count responses are more than half of n.
func IsQuorum(count, n int) bool {
	return count > n/2
}
