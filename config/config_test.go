package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv(func(string) string { return "" })
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.CASBackend != "localfs" || c.FingerprintTimeout != DefaultFingerprintTimeout {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestFromEnv_BadTimeout(t *testing.T) {
	env := map[string]string{EnvFingerprintTimeout: "soon"}
	if _, err := FromEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected error")
	}
	env[EnvFingerprintTimeout] = "-1s"
	if _, err := FromEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatalf("expected error for negative timeout")
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	body := "RESULTLEDGER_CAS_BACKEND=redis\nRESULTLEDGER_REDIS_ADDR=127.0.0.1:6379\nRESULTLEDGER_FINGERPRINT_TIMEOUT=3s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvCASBackend, "ipfs")
	t.Setenv(EnvRedisAddr, "")
	t.Setenv(EnvFingerprintTimeout, "")
	os.Unsetenv(EnvRedisAddr)
	os.Unsetenv(EnvFingerprintTimeout)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CASBackend != "ipfs" {
		t.Fatalf("environment should win over .env, got %q", c.CASBackend)
	}
	if c.RedisAddr != "127.0.0.1:6379" || c.FingerprintTimeout != 3*time.Second {
		t.Fatalf(".env values not applied: %+v", c)
	}
	if _, err := Load(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestBackendConfig(t *testing.T) {
	c := Config{CASBackend: "localfs", LocalFSDir: "/var/lib/cas"}
	if got := c.BackendConfig()["localfs-dir"]; got != "/var/lib/cas" {
		t.Fatalf("unexpected localfs config: %q", got)
	}
	c = Config{CASBackend: "ipfs"}
	if len(c.BackendConfig()) != 0 {
		t.Fatalf("empty settings should be omitted")
	}
}
