package testing

// ReverseIDs reverses provided ids. History queries return newest first, so
// ids collected in creation order are reversed before comparison.
func ReverseIDs(ids []int64) []int64 {
	reversed := make([]int64, len(ids))
	copy(reversed, ids)

	for i := len(reversed)/2 - 1; i >= 0; i-- {
		opp := len(reversed) - 1 - i
		reversed[i], reversed[opp] = reversed[opp], reversed[i]
	}

	return reversed
}
