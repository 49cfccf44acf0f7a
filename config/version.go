package config

import (
	_ "embed"
	"strings"
)

//go:embed version
var versionFile string

// Version 程序版本号，编译时可通过 -ldflags 覆盖:
// go build -ldflags "-X 'github.com/qist/camgate/config.Version=v1.1.0'" .
var Version = ""

func init() {
	if Version == "" {
		Version = strings.TrimSpace(versionFile)
	}
}
