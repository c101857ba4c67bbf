// Package bucketing maps user identifiers onto a stable percentile in [0, 100).
//
// The mapping is a pure function of the identifier: a 32-bit polynomial rolling
// hash (h = h*31 + c over UTF-16 code units, wrapping at 32 bits) folded to its
// absolute value and reduced modulo 100. There is no salt, so a user lands in the
// same bucket in every process and across restarts, and users bucketed by earlier
// deployments keep their assignment.
//
// # Usage
//
//	b := bucketing.Bucket("user_42") // 6
//	if b < phase.Percentage {
//		// user is inside the rollout
//	}
//
// Any string is valid input, including the empty string, which lands in bucket 0.
package bucketing
