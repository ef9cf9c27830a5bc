package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExpand(t *testing.T) {
	t.Setenv("CFG_SET", "value")
	t.Setenv("CFG_EMPTY", "")
	cases := map[string]string{
		"$CFG_SET":                 "value",
		"${CFG_SET}":               "value",
		"${CFG_SET:-other}":        "value",
		"${CFG_EMPTY:-fallback}":   "fallback",
		"${CFG_MISSING:-fallback}": "fallback",
		"${CFG_MISSING}":           "",
		"plain text":               "plain text",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	t.Setenv("CFG_TOKEN", "abc")
	p := writeFile(t, "port: 9000\ntoken: ${CFG_TOKEN}\n")
	cfg := sample{Name: "default", Port: 1}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 9000 || cfg.Token != "abc" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg := sample{Port: 8080}
	if err := Load(writeFile(t, ""), &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d", cfg.Port)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	cfg := sample{Port: 1}
	err := Load(writeFile(t, "prot: 9000\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadValidates(t *testing.T) {
	cfg := sample{}
	err := Load(writeFile(t, "port: 0\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}
