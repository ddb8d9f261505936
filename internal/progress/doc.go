// Package progress accumulates per-device and global download statistics
// and produces smoothed time-remaining estimates. All percentages are
// byte-based so large videos and small photos weigh in proportionally.
package progress
