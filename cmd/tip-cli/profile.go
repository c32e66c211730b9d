package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// profile holds per-user defaults so that common flags can be omitted.
type profile struct {
	RPC         string `yaml:"rpc"`
	Keystore    string `yaml:"keystore"`
	FaucetToken string `yaml:"faucet_token"`
}

func defaultProfilePath() string {
	if v := strings.TrimSpace(os.Getenv("TIP_PROFILE")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tipchain", "profile.yaml")
}

// loadProfile reads path. A missing file yields an empty profile.
func loadProfile(path string) (profile, error) {
	var p profile
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	p.RPC = strings.TrimSpace(p.RPC)
	p.Keystore = strings.TrimSpace(p.Keystore)
	p.FaucetToken = strings.TrimSpace(p.FaucetToken)
	return p, nil
}

func saveProfile(path string, p profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
