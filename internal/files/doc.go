// Package files locates session files on disk.
//
// Discovery walks a directory tree and returns the files whose base name
// matches a task's Pattern, in natural order of their paths so that
// "p2.csv" is processed before "p10.csv".
//
// Example usage:
//
//	discovery := files.NewDiscovery("")
//	pattern := files.MustCompilePattern(`.*TRT.*\.csv`, false)
//	sessions, err := discovery.FindByPattern("data/trt", pattern)
package files
