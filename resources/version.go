package resources

import (
	"embed"
	"strings"
)

//go:embed templates/version.txt
var templates embed.FS

var version string

// Version gets the current version. A value set at link time with
// -ldflags "-X github.com/adhikar/registry/resources.version=..." wins.
func Version() (string, error) {
	if version != "" {
		return version, nil
	}
	raw, err := templates.ReadFile("templates/version.txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
