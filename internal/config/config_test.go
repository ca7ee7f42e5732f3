package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
reader:
  index: 1
emrtd:
  mrz_file: passport.txt
vevr:
  dump_dir: dumps
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Reader.Index == nil || *cfg.Reader.Index != 1 {
		t.Errorf("Reader.Index = %v, want 1", cfg.Reader.Index)
	}

	// Relative paths resolve against the config directory.
	wantMRZ := filepath.Join(filepath.Dir(path), "passport.txt")
	if cfg.EMRTD.MRZFile != wantMRZ {
		t.Errorf("MRZFile = %q, want %q", cfg.EMRTD.MRZFile, wantMRZ)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, "unknown_key: true\n")
	if _, err := Load(path); err == nil {
		t.Error("config with unknown key accepted")
	}
}

func TestLoad_BadReaderIndex(t *testing.T) {
	path := writeConfig(t, "reader:\n  index: -1\n")
	if _, err := Load(path); err == nil {
		t.Error("negative reader index accepted")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.VEVR.DumpDir != "." {
		t.Errorf("DumpDir = %q, want .", cfg.VEVR.DumpDir)
	}
}
