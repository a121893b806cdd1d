package cmd

import (
	"os"
	"path/filepath"

	"github.com/shibukawa/configdir"

	"github.com/adhikar/registry/nodebuilder"
)

const configFileName = "config.toml"

// configPath prefers --config, then the user's config dir, then the system
// one. With no file found it points at the user location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	for _, scope := range []configdir.ConfigType{configdir.Global, configdir.System} {
		conf := configdir.New("adhikar", filepath.Join("registry", namespace))
		folders := conf.QueryFolders(scope)
		if len(folders) == 0 {
			continue
		}
		fpath := filepath.Join(folders[0].Path, configFileName)
		if _, err := os.Stat(fpath); err == nil {
			log.Infow("loading configuration from file", "filename", fpath)
			return fpath
		}
	}
	return filepath.Join(nodebuilder.ConfigDir(namespace), configFileName)
}
