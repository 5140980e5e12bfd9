// ABOUTME: CLI flag parsing plus the on-disk swarm config file (role, seeds, capabilities), merged.
// ABOUTME: Uses flag.NewFlagSet for CLI parsing; the on-disk config file is decoded with gopkg.in/yaml.v3.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// config holds every setting the node needs at startup, merged from flags
// and (if present) the on-disk swarm config file under --data-dir.
type config struct {
	p2pPort       int
	discoveryPort int
	httpPort      int
	seeds         []string
	dataDir       string
	role          string
	repoPath      string
	worktreeRoot  string
	model         string
	capabilities  []string
	showVersion   bool
}

// swarmFile is the shape of <data-dir>/swarm.yaml, the optional config file
// holding role, seeds, and capabilities alongside the CLI flags. The file is
// read after the flags are parsed, and a file value is used only where the
// matching flag was left empty or at its default; a flag passed explicitly
// with its default value (e.g. --role worker) is still replaced by the file.
type swarmFile struct {
	Role         string   `yaml:"role"`
	Seeds        []string `yaml:"seeds"`
	Capabilities []string `yaml:"capabilities"`
	RepoPath     string   `yaml:"repo_path"`
	Model        string   `yaml:"model"`
}

func loadSwarmFile(dataDir string) (swarmFile, error) {
	path := dataDir + "/swarm.yaml"
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return swarmFile{}, nil
	}
	if err != nil {
		return swarmFile{}, fmt.Errorf("read swarm config: %w", err)
	}
	var sf swarmFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return swarmFile{}, fmt.Errorf("parse swarm config: %w", err)
	}
	return sf, nil
}

func parseFlags(args []string) (config, error) {
	var cfg config
	var seeds, caps string

	fs := flag.NewFlagSet("voidlux", flag.ContinueOnError)
	fs.IntVar(&cfg.p2pPort, "p2p-port", 7946, "TCP port for the peer mesh")
	fs.IntVar(&cfg.discoveryPort, "discovery-port", 7947, "UDP port for LAN discovery announce/listen")
	fs.IntVar(&cfg.httpPort, "http-port", 8787, "HTTP surface port")
	fs.StringVar(&seeds, "seeds", "", "comma-separated host:port seed addresses to dial on startup")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "data directory for SQLite state and node identity (default: $XDG_DATA_HOME/voidlux)")
	fs.StringVar(&cfg.role, "role", "worker", "initial node role: worker or seneschal (emperor is assumed via election, never set directly)")
	fs.StringVar(&cfg.repoPath, "repo", "", "path to the git repository MergeTestRetry integrates branches into")
	fs.StringVar(&cfg.worktreeRoot, "worktree-root", "", "parent directory for integration/subtask worktrees (default: <data-dir>/worktrees)")
	fs.StringVar(&cfg.model, "model", "sonnet", "model alias used by the default LLM-backed Planner/Reviewer")
	fs.StringVar(&caps, "capabilities", "", "comma-separated node capability tags advertised to the swarm")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	fs.Usage = func() { printHelp(os.Stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return config{}, err
	}

	if seeds != "" {
		cfg.seeds = splitNonEmpty(seeds)
	}
	if caps != "" {
		cfg.capabilities = splitNonEmpty(caps)
	}

	dataDir, err := resolveDataDir(cfg.dataDir)
	if err != nil {
		return config{}, err
	}
	cfg.dataDir = dataDir

	sf, err := loadSwarmFile(dataDir)
	if err != nil {
		return config{}, err
	}
	if cfg.role == "worker" && sf.Role != "" {
		cfg.role = sf.Role
	}
	if len(cfg.seeds) == 0 {
		cfg.seeds = sf.Seeds
	}
	if len(cfg.capabilities) == 0 {
		cfg.capabilities = sf.Capabilities
	}
	if cfg.repoPath == "" {
		cfg.repoPath = sf.RepoPath
	}
	if cfg.model == "sonnet" && sf.Model != "" {
		cfg.model = sf.Model
	}
	if cfg.worktreeRoot == "" {
		cfg.worktreeRoot = cfg.dataDir + "/worktrees"
	}

	return cfg, nil
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
