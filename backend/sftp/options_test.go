package sftp

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); !errors.Is(err, ErrHostRequired) {
		t.Errorf("Validate empty = %v, want ErrHostRequired", err)
	}
	if err := (Config{Host: "h"}).Validate(); !errors.Is(err, ErrUserRequired) {
		t.Errorf("Validate host-only = %v, want ErrUserRequired", err)
	}
	if err := (Config{Host: "h", User: "u"}).Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]string{
		"host":     "archive.example.com",
		"port":     "2222",
		"user":     "eval",
		"password": "secret",
		"root":     "/data/eval",
		"timeout":  "10",
	})

	if cfg.Host != "archive.example.com" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Port != 2222 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.User != "eval" {
		t.Errorf("User = %q", cfg.User)
	}
	if cfg.Password != "secret" {
		t.Errorf("Password = %q", cfg.Password)
	}
	if cfg.Root != "/data/eval" {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.Timeout != 10 {
		t.Errorf("Timeout = %d", cfg.Timeout)
	}
}

func TestConfigFromMapDefaults(t *testing.T) {
	cfg := ConfigFromMap(map[string]string{"host": "h", "user": "u"})

	if cfg.Port != 22 {
		t.Errorf("Port = %d, want 22", cfg.Port)
	}
	if cfg.Timeout != 30 {
		t.Errorf("Timeout = %d, want 30", cfg.Timeout)
	}
}

func TestConfigFromMapPassAlias(t *testing.T) {
	cfg := ConfigFromMap(map[string]string{"host": "h", "user": "u", "pass": "p"})
	if cfg.Password != "p" {
		t.Errorf("Password = %q, want %q", cfg.Password, "p")
	}
}

func TestNewRequiresAuth(t *testing.T) {
	_, err := New(Config{Host: "h", User: "u"})
	if err == nil {
		t.Fatal("New without auth succeeded")
	}
}
