//go:build !unix

package capability

func unameMachine() string { return "" }
