package blockscrub

import (
	"errors"
	"fmt"
	"os"

	"github.com/varalys/blockscrub/internal/config"
	"github.com/varalys/blockscrub/internal/registry"
)

var errNoFormats = errors.New("no formats configured; run 'blockscrub config init' or pass --config")

// settings is the resolved configuration: an explicit --config file or the
// local file of the working directory, layered over the global file.
type settings struct {
	local, global config.FileConfig
	merged        config.FileConfig
	path          string // file the formats came from, for watching
}

func (a *app) loadSettings() (settings, error) {
	var s settings
	if c, err := config.LoadGlobal(); err == nil {
		s.global = c
		s.path, _ = config.GlobalPath()
	} else if !errors.Is(err, config.ErrNoGlobalConfig) {
		return s, err
	}

	if a.flagConfig != "" {
		c, err := config.LoadFile(a.flagConfig)
		if err != nil {
			return s, fmt.Errorf("load config: %w", err)
		}
		s.local, s.path = c, a.flagConfig
	} else if wd, err := os.Getwd(); err == nil {
		if p, err := config.FindLocal(wd); err == nil {
			c, err := config.LoadFile(p)
			if err != nil {
				return s, fmt.Errorf("load config: %w", err)
			}
			s.local, s.path = c, p
		}
	}
	s.merged = config.Merge(s.local, s.global)
	return s, nil
}

// buildRegistry compiles every configured format.
func buildRegistry(fc config.FileConfig) (*registry.Registry, error) {
	specs, err := fc.FormatSpecs()
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, errNoFormats
	}
	return registry.New(specs)
}
