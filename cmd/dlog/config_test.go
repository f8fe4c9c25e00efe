package main

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"full.yaml": `
image: /dev/mmcblk0
logLevel: debug
record:
  prefix: CAR
  buffers: 4
  timeout: 1s
serve:
  ftp: ":2121"
`,
		"empty.yaml":   "",
		"broken.yaml":  "record: [",
		"buffers.yaml": "record:\n  buffers: 1\n",
	}
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	full := defaultConfig()
	full.Image = "/dev/mmcblk0"
	full.LogLevel = "debug"
	full.Record.Prefix = "CAR"
	full.Record.Buffers = 4
	full.Record.Timeout = time.Second
	full.Serve.FTP = ":2121"

	tests := []struct {
		name    string
		path    string
		want    config
		wantErr bool
	}{
		{name: "overrides defaults", path: "full.yaml", want: full},
		{name: "empty file", path: "empty.yaml", want: defaultConfig()},
		{name: "missing file", path: "missing.yaml", wantErr: true},
		{name: "invalid yaml", path: "broken.yaml", wantErr: true},
		{name: "too few buffers", path: "buffers.yaml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadConfig(fs, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("loadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && got != tt.want {
				t.Errorf("loadConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "512", want: 512},
		{in: "8k", want: 8 << 10},
		{in: "64M", want: 64 << 20},
		{in: " 1.5g ", want: 3 << 29},
		{in: "100b", want: 100},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "-1M", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseSize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parseSize() = %v, want %v", got, tt.want)
			}
		})
	}
}
