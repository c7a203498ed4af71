package evaldb

import (
	"errors"
	"testing"
)

type stubStore struct {
	Store
}

func TestRegisterAndUnregister(t *testing.T) {
	const name = "test_backend"
	Register(name, func(config map[string]string) (Store, error) {
		return &stubStore{}, nil
	})
	t.Cleanup(func() { Unregister(name) })

	if !IsRegistered(name) {
		t.Fatalf("IsRegistered(%s) = false after Register", name)
	}

	found := false
	for _, b := range Backends() {
		if b == name {
			found = true
		}
	}
	if !found {
		t.Errorf("Backends() = %v, missing %s", Backends(), name)
	}

	if !Unregister(name) {
		t.Error("Unregister returned false for registered backend")
	}
	if Unregister(name) {
		t.Error("Unregister returned true for absent backend")
	}
}

func TestRegisterPanics(t *testing.T) {
	assertPanics := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		fn()
	}

	assertPanics("nil factory", func() { Register("nil_factory", nil) })

	Register("dup_backend", func(map[string]string) (Store, error) { return nil, nil })
	t.Cleanup(func() { Unregister("dup_backend") })
	assertPanics("duplicate", func() {
		Register("dup_backend", func(map[string]string) (Store, error) { return nil, nil })
	})
}

func TestParseDescriptor(t *testing.T) {
	Register("reg_test", func(map[string]string) (Store, error) { return nil, nil })
	t.Cleanup(func() { Unregister("reg_test") })

	tests := []struct {
		descriptor string
		wantName   string
		wantConfig map[string]string
		wantErr    bool
	}{
		{
			descriptor: "/data/eval",
			wantName:   "json_files",
			wantConfig: map[string]string{"root": "/data/eval"},
		},
		{
			descriptor: "reg_test:/data/eval",
			wantName:   "reg_test",
			wantConfig: map[string]string{"root": "/data/eval"},
		},
		{
			descriptor: "reg_test:bucket=eval,region=eu-north-1",
			wantName:   "reg_test",
			wantConfig: map[string]string{"bucket": "eval", "region": "eu-north-1"},
		},
		{
			descriptor: "reg_test:",
			wantName:   "reg_test",
			wantConfig: map[string]string{},
		},
		{
			// Unregistered identifier falls back to a path, colon included.
			descriptor: "nope:/data/eval",
			wantName:   "json_files",
			wantConfig: map[string]string{"root": "nope:/data/eval"},
		},
		{
			descriptor: "reg_test:bucket=eval,,region=x",
			wantErr:    true,
		},
		{
			descriptor: "reg_test:=broken",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		name, config, err := ParseDescriptor(tt.descriptor)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDescriptor(%q) succeeded, want error", tt.descriptor)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDescriptor(%q) failed: %v", tt.descriptor, err)
			continue
		}
		if name != tt.wantName {
			t.Errorf("ParseDescriptor(%q) name = %q, want %q", tt.descriptor, name, tt.wantName)
		}
		if len(config) != len(tt.wantConfig) {
			t.Errorf("ParseDescriptor(%q) config = %v, want %v", tt.descriptor, config, tt.wantConfig)
			continue
		}
		for k, v := range tt.wantConfig {
			if config[k] != v {
				t.Errorf("ParseDescriptor(%q) config[%s] = %q, want %q", tt.descriptor, k, config[k], v)
			}
		}
	}
}

func TestOpenFactoryError(t *testing.T) {
	Register("broken_backend", func(map[string]string) (Store, error) {
		return nil, errors.New("refused")
	})
	t.Cleanup(func() { Unregister("broken_backend") })

	if _, err := Open("broken_backend:x=y"); err == nil {
		t.Error("Open succeeded with failing factory")
	}
}
