package commands

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/collective/volto-hydra/internal/config"
)

// CheckCommand validates the configuration without starting the server.
func CheckCommand(args []string) error {
	dir := "."
	var configPath string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		} else if !strings.HasPrefix(arg, "-") {
			dir = arg
		}
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		absDir, aerr := filepath.Abs(dir)
		if aerr != nil {
			return aerr
		}
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return err
	}

	var problems []string
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	for name, origin := range map[string]string{
		"server.admin_origin": cfg.Server.AdminOrigin,
		"server.frame_origin": cfg.Server.FrameOrigin,
	} {
		if origin == "" {
			problems = append(problems, name+" is empty")
			continue
		}
		u, perr := url.Parse(origin)
		if perr != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s %q is not an origin", name, origin))
		}
	}
	if cfg.Server.AdminOrigin != "" && cfg.Server.AdminOrigin == cfg.Server.FrameOrigin {
		problems = append(problems, "admin and frame origins must differ")
	}
	if cfg.Auth.Secret == "" {
		problems = append(problems, "auth.secret is empty; GET_TOKEN will be ignored")
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("  ✗ %s\n", p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}
	fmt.Println("Configuration OK")
	return nil
}
