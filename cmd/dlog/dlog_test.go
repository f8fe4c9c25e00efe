package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/fclairamb/go-log/noop"
	"github.com/spf13/afero"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/blockdev"
	"github.com/calsol/fatlog/canlog"
)

func testingVolume(t *testing.T) (*fatlog.FS, blockdev.Device) {
	t.Helper()
	cfg = defaultConfig()
	logger = noop.NewNoOpLogger()

	dev := blockdev.NewMemory(16384)
	if err := fatlog.Format(dev, fatlog.FormatOptions{SectorsPerCluster: 2, Label: "DLOG"}); err != nil {
		t.Fatalf("fatlog.Format() error = %v", err)
	}
	volume, err := fatlog.Mount(dev)
	if err != nil {
		t.Fatalf("fatlog.Mount() error = %v", err)
	}
	return volume, dev
}

func readFile(t *testing.T, volume *fatlog.FS, name string) []byte {
	t.Helper()
	data, err := afero.ReadFile(volume, name)
	if err != nil {
		t.Fatalf("afero.ReadFile(%v) error = %v", name, err)
	}
	return data
}

// keyReader feeds keys from a string the way a tty does.
type keyReader struct {
	r *strings.Reader
}

func keys(s string) keyReader {
	return keyReader{r: strings.NewReader(s)}
}

func (k keyReader) ReadRune() (rune, error) {
	r, _, err := k.r.ReadRune()
	return r, err
}

func TestRecord(t *testing.T) {
	volume, dev := testingVolume(t)

	input := "can0  0DE   [8]  4C 4F 4C 44 55 43 4B 53\n0FF#01\nbroken\n"
	var echo bytes.Buffer
	stats, err := record(context.Background(), volume, dev, canlog.NewScanner(strings.NewReader(input)), "", true, &echo)
	if err != nil {
		t.Fatalf("record() error = %v", err)
	}
	want := "0DE,08,4C,4F,4C,44,55,43,4B,53\n0FF,01,01\n"
	if stats != (canlog.Stats{Frames: 2, Invalid: 1, Bytes: uint64(len(want))}) {
		t.Errorf("record() stats = %+v", stats)
	}
	if echo.String() != want {
		t.Errorf("record() echoed %q, want %q", echo.String(), want)
	}
	if got := readFile(t, volume, "DLGTST00.DLG"); string(got) != want {
		t.Errorf("DLGTST00.DLG = %q, want %q", got, want)
	}

	// The next recording goes into the next file.
	if _, err := record(context.Background(), volume, dev, canlog.NewScanner(strings.NewReader("")), "", false, io.Discard); err != nil {
		t.Fatalf("record() error = %v", err)
	}
	if info, err := volume.Stat("DLGTST01.DLG"); err != nil || info.Size() != 0 {
		t.Errorf("FS.Stat(DLGTST01.DLG) = %v, %v", info, err)
	}

	// Explicit names must be free.
	_, err = record(context.Background(), volume, dev, canlog.NewScanner(strings.NewReader("")), "DLGTST00", false, io.Discard)
	if !errors.Is(err, fatlog.ErrExists) {
		t.Errorf("record() error = %v, want %v", err, fatlog.ErrExists)
	}
}

func TestConsole_handle(t *testing.T) {
	volume, dev := testingVolume(t)
	file, closeDMA, err := newStream(volume, dev, "BENCH")
	if err != nil {
		t.Fatalf("newStream() error = %v", err)
	}
	defer closeDMA()

	var out bytes.Buffer
	c := newConsole(file, &out, logger)
	for _, key := range "nl?" {
		if err := c.handle(key); err != nil {
			t.Fatalf("console.handle(%q) error = %v", key, err)
		}
	}
	if err := c.handle('x'); !errors.Is(err, errQuit) {
		t.Fatalf("console.handle('x') error = %v, want %v", err, errQuit)
	}

	want := "0DE,08,4C,4F,4C,44,55,43,4B,53\n" + strings.Repeat("Duckies!\n", testBlocks)
	if got := readFile(t, volume, "BENCH.DLG"); string(got) != want {
		t.Errorf("BENCH.DLG has %v bytes, want %v", len(got), len(want))
	}
	if !strings.Contains(out.String(), "Unrecognized key '?'") {
		t.Errorf("console output %q misses the unknown key", out.String())
	}
}

func TestConsole_run(t *testing.T) {
	volume, dev := testingVolume(t)
	file, closeDMA, err := newStream(volume, dev, "")
	if err != nil {
		t.Fatalf("newStream() error = %v", err)
	}
	defer closeDMA()

	c := newConsole(file, io.Discard, logger)
	if err := c.run(keys("kx")); err != nil {
		t.Fatalf("console.run() error = %v", err)
	}

	got := readFile(t, volume, "DLGTST00.DLG")
	if len(got) != testBlocks*blockdev.BlockSize {
		t.Fatalf("DLGTST00.DLG has %v bytes, want %v", len(got), testBlocks*blockdev.BlockSize)
	}
	block := string(got[blockdev.BlockSize : 2*blockdev.BlockSize])
	if want := strings.Repeat("0001\n", 100) + "End of Sect\n"; block != want {
		t.Errorf("second block = %q, want %q", block, want)
	}
	if last := string(got[len(got)-22:]); last != "03FF\n03FF\nEnd of Sect\n" {
		t.Errorf("last block ends with %q", last)
	}
}

func TestConsole_write_singleCPU(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	volume, dev := testingVolume(t)
	file, closeDMA, err := newStream(volume, dev, "")
	if err != nil {
		t.Fatalf("newStream() error = %v", err)
	}
	defer closeDMA()

	c := newConsole(file, io.Discard, logger)
	done := make(chan error, 1)
	go func() {
		if err := c.handle('k'); err != nil {
			done <- err
			return
		}
		done <- c.handle('x')
	}()

	select {
	case err := <-done:
		if !errors.Is(err, errQuit) {
			t.Fatalf("console.handle() error = %v, want %v", err, errQuit)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("console.handle('k') did not finish on a single CPU")
	}
	if info, err := volume.Stat("DLGTST00.DLG"); err != nil || info.Size() != testBlocks*blockdev.BlockSize {
		t.Errorf("FS.Stat(DLGTST00.DLG) = %v, %v", info, err)
	}
}

func TestFtpDriver_AuthUser(t *testing.T) {
	volume, _ := testingVolume(t)

	tests := []struct {
		name     string
		password string
		user     string
		pass     string
		wantErr  error
	}{
		{name: "valid", password: "ducks", user: "datalogger", pass: "ducks"},
		{name: "wrong password", password: "ducks", user: "datalogger", pass: "geese", wantErr: errAuth},
		{name: "wrong user", password: "ducks", user: "root", pass: "ducks", wantErr: errAuth},
		{name: "any password", user: "datalogger", pass: "whatever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &ftpDriver{volume: volume, log: logger, addr: ":2121", user: "datalogger", password: tt.password}
			got, err := d.AuthUser(nil, tt.user, tt.pass)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ftpDriver.AuthUser() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && got != volume {
				t.Errorf("ftpDriver.AuthUser() = %v, want the volume", got)
			}
		})
	}

	d := &ftpDriver{addr: ":2121"}
	if s, err := d.GetSettings(); err != nil || s.ListenAddr != ":2121" {
		t.Errorf("ftpDriver.GetSettings() = %+v, %v", s, err)
	}
	if _, err := d.GetTLSConfig(); !errors.Is(err, errNoTLS) {
		t.Errorf("ftpDriver.GetTLSConfig() error = %v, want %v", err, errNoTLS)
	}
}

func TestHandlers(t *testing.T) {
	volume, dev := testingVolume(t)
	if _, err := record(context.Background(), volume, dev, canlog.NewScanner(strings.NewReader("123#AB\n")), "", false, io.Discard); err != nil {
		t.Fatalf("record() error = %v", err)
	}

	tests := []struct {
		name     string
		handler  http.Handler
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "webdav get", handler: newWebDAVHandler(volume, ""), method: http.MethodGet, path: "/DLGTST00.DLG", wantCode: http.StatusOK, wantBody: "123,01,AB\n"},
		{name: "webdav missing", handler: newWebDAVHandler(volume, ""), method: http.MethodGet, path: "/NOPE.DLG", wantCode: http.StatusNotFound},
		{name: "http get", handler: http.FileServer(http.FS(fatlog.NewGoFS(volume))), method: http.MethodGet, path: "/DLGTST00.DLG", wantCode: http.StatusOK, wantBody: "123,01,AB\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader("data")))
			if rec.Code != tt.wantCode {
				t.Errorf("%s %s = %v, want %v", tt.method, tt.path, rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("%s %s body = %q, want %q", tt.method, tt.path, rec.Body.String(), tt.wantBody)
			}
		})
	}
}
