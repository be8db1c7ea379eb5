// Package enums provides type-safe enumeration types for the build history.
//
// The enum types are defined as unexported integer types in this file, and the go:generate
// directives invoke go-pkgz/enum generator to create exported types with String, Parse,
// text marshaling and Scan/Value methods in separate *_enum.go files.
//
//	status := enums.BuildStatusRunning
//	fmt.Println(status.String()) // "running"
//	parsed, err := enums.ParseBuildStatus("success")
//
// To regenerate the enum types after modifications:
//
//	go generate ./app/web/enums
package enums

//go:generate go run github.com/go-pkgz/enum@latest -type buildStatus -lower

// buildStatus is the state of a build record.
// Use the exported BuildStatus type and its constants in actual code.
type buildStatus int

const (
	buildStatusRunning buildStatus = iota
	buildStatusSuccess
	buildStatusFailed
	buildStatusInterrupted
)
