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
	Debug bool   `yaml:"debug"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestLoadKeepsDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "wiki")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("name: ${SAMPLE_NAME}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := sample{Port: 8080}
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "wiki" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseRunsValidation(t *testing.T) {
	cfg := sample{}
	err := Parse([]byte("port: 0\n"), &cfg)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Errorf("err = %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	cfg := sample{Port: 1}
	if err := Parse([]byte("nmae: typo\n"), &cfg); err == nil {
		t.Error("expected unknown field to be rejected")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg := sample{Port: 1}
	if err := Parse([]byte(""), &cfg); err != nil {
		t.Errorf("empty document: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Error("expected error for missing file")
	}
}
