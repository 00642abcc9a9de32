package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	_ "image/jpeg"

	"github.com/spf13/cobra"

	"github.com/faizmokh/hadir/internal/enroll"
	"github.com/faizmokh/hadir/internal/files"
)

var (
	red   = color.RGBA{R: 220, A: 255}
	green = color.RGBA{G: 220, A: 255}
	blue  = color.RGBA{B: 220, A: 255}
)

func TestStartSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	clearHadirEnv(t)
	mgr := newTempManager(t)
	srv, _ := newEmbeddingServer(t)

	rosterPath := filepath.Join(t.TempDir(), "roster.yaml")
	writeFile(t, rosterPath, "entries:\n  - {label: alice, vector: [1, 0, 0]}\n  - {label: bob, vector: [0, 1, 0]}\n")

	framesDir := t.TempDir()
	writeSolidPNG(t, filepath.Join(framesDir, "001.png"), red)
	writeSolidPNG(t, filepath.Join(framesDir, "002.png"), red)
	writeSolidPNG(t, filepath.Join(framesDir, "003.png"), blue)
	writeSolidPNG(t, filepath.Join(framesDir, "004.png"), green)

	args := []string{"start", "Math", "101",
		"--frames", framesDir,
		"--roster", rosterPath,
		"--embedding-url", srv.URL,
	}

	// 1. First session records alice once and archives the stranger.
	startOut := executeCommand(t, NewRootCommand(ctx, mgr), args...)
	assertContains(t, startOut, "for Math 101")
	assertContains(t, startOut, "Frames: 4 (4 sampled)")
	assertContains(t, startOut, "Recorded: 1 (alice)")
	assertContains(t, startOut, "Archived unknown faces: 1")

	archived, err := os.ReadDir(mgr.ArchiveDir(""))
	if err != nil {
		t.Fatalf("ReadDir(archive): %v", err)
	}
	if len(archived) != 1 || !strings.HasPrefix(archived[0].Name(), "unknown_") {
		t.Fatalf("archive contents = %v, want one unknown_*.jpg", archived)
	}

	// 2. The sheet shows exactly one row.
	sheetOut := executeCommand(t, NewRootCommand(ctx, mgr), "sheet", "Math 101")
	assertContains(t, sheetOut, "Math 101")
	assertContains(t, sheetOut, "alice")
	assertContains(t, sheetOut, "1 recorded")

	// 3. The lecture is listed.
	lecturesOut := executeCommand(t, NewRootCommand(ctx, mgr), "lectures")
	assertContains(t, lecturesOut, "Math 101")

	// 4. A second session for the same lecture treats alice as already marked.
	againOut := executeCommand(t, NewRootCommand(ctx, mgr), args...)
	assertContains(t, againOut, "Recorded: 0")
	assertNotContains(t, againOut, "(alice)")

	sheetOut = executeCommand(t, NewRootCommand(ctx, mgr), "sheet", "Math 101")
	assertContains(t, sheetOut, "1 recorded")
	assertNotContains(t, sheetOut, "2. ")
}

func TestStartWithCadenceSkipsFrames(t *testing.T) {
	ctx := context.Background()
	clearHadirEnv(t)
	mgr := newTempManager(t)
	srv, requests := newEmbeddingServer(t)

	rosterPath := filepath.Join(t.TempDir(), "roster.yaml")
	writeFile(t, rosterPath, "entries:\n  - {label: alice, vector: [1, 0, 0]}\n")

	framesDir := t.TempDir()
	for _, name := range []string{"1.png", "2.png", "3.png", "4.png", "5.png"} {
		writeSolidPNG(t, filepath.Join(framesDir, name), red)
	}

	out := executeCommand(t, NewRootCommand(ctx, mgr), "start", "Physics",
		"--frames", framesDir,
		"--roster", rosterPath,
		"--embedding-url", srv.URL,
		"--cadence", "2",
	)
	assertContains(t, out, "Frames: 5 (3 sampled)")
	if got := requests.Load(); got != 3 {
		t.Fatalf("embedding requests = %d, want 3", got)
	}
}

func TestStartFailsBeforeWritingWhenFramesMissing(t *testing.T) {
	ctx := context.Background()
	clearHadirEnv(t)
	mgr := newTempManager(t)
	srv, _ := newEmbeddingServer(t)

	rosterPath := filepath.Join(t.TempDir(), "roster.yaml")
	writeFile(t, rosterPath, "entries:\n  - {label: alice, vector: [1, 0, 0]}\n")

	err := executeCommandErr(t, NewRootCommand(ctx, mgr), "start", "Math 101",
		"--frames", filepath.Join(t.TempDir(), "missing"),
		"--roster", rosterPath,
		"--embedding-url", srv.URL,
	)
	if err == nil || !strings.Contains(err.Error(), "open frame source") {
		t.Fatalf("err = %v, want frame source error", err)
	}
	if _, statErr := os.Stat(mgr.LedgerPath("")); !os.IsNotExist(statErr) {
		t.Fatalf("ledger should not exist after a failed start, stat err = %v", statErr)
	}
}

func TestEnrollWritesRosterAndUsesCache(t *testing.T) {
	ctx := context.Background()
	clearHadirEnv(t)
	mgr := newTempManager(t)
	srv, requests := newEmbeddingServer(t)

	enrollDir := t.TempDir()
	writeSolidPNG(t, filepath.Join(enrollDir, "Alice Smith.png"), red)
	writeSolidPNG(t, filepath.Join(enrollDir, "bob.png"), blue)
	out := filepath.Join(t.TempDir(), "roster.yaml")

	args := []string{"enroll", "--enroll-dir", enrollDir, "--embedding-url", srv.URL, "--progress=false", "--out", out}
	enrollOut := executeCommand(t, NewRootCommand(ctx, mgr), args...)
	assertContains(t, enrollOut, "Enrolled 2 identities: alice_smith, bob")
	assertContains(t, enrollOut, "Wrote roster to "+out)

	roster, err := (&enroll.FileSource{Path: out}).Load(ctx)
	if err != nil {
		t.Fatalf("FileSource.Load: %v", err)
	}
	if got := strings.Join(roster.Labels(), ","); got != "alice_smith,bob" {
		t.Fatalf("roster labels = %q, want %q", got, "alice_smith,bob")
	}

	executeCommand(t, NewRootCommand(ctx, mgr), args...)
	if got := requests.Load(); got != 2 {
		t.Fatalf("embedding requests = %d, want 2 (second run served from cache)", got)
	}
}

func TestEnrollFailsWhenNoFace(t *testing.T) {
	ctx := context.Background()
	clearHadirEnv(t)
	mgr := newTempManager(t)
	srv, _ := newEmbeddingServer(t)

	enrollDir := t.TempDir()
	writeSolidPNG(t, filepath.Join(enrollDir, "ghost.png"), green)

	err := executeCommandErr(t, NewRootCommand(ctx, mgr), "enroll", "--enroll-dir", enrollDir, "--embedding-url", srv.URL, "--progress=false")
	if err == nil || !strings.Contains(err.Error(), "no face found") {
		t.Fatalf("err = %v, want no face error", err)
	}
}

func TestSheetWithoutLedger(t *testing.T) {
	ctx := context.Background()
	clearHadirEnv(t)
	mgr := newTempManager(t)

	out := executeCommand(t, NewRootCommand(ctx, mgr), "sheet", "Math 101")
	assertContains(t, out, "No attendance recorded for Math 101")

	out = executeCommand(t, NewRootCommand(ctx, mgr), "lectures")
	assertContains(t, out, "(no lectures)")
}

func TestVersionCommand(t *testing.T) {
	clearHadirEnv(t)
	out := executeCommand(t, NewRootCommand(context.Background(), newTempManager(t)), "version")
	assertContains(t, out, "hadir dev")
}

// newEmbeddingServer fakes the embedding service: reddish images carry a face with
// vector [1,0,0], bluish ones [0,0,1], anything else has no face.
func newEmbeddingServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)

		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		img, _, err := image.Decode(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		b := img.Bounds()
		cr, cg, cb, _ := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()

		var embedding []float32
		switch {
		case cr > cg && cr > cb:
			embedding = []float32{1, 0, 0}
		case cb > cr && cb > cg:
			embedding = []float32{0, 0, 1}
		}

		faces := []map[string]any{}
		if embedding != nil {
			faces = append(faces, map[string]any{
				"face_index": 0,
				"dim":        len(embedding),
				"embedding":  embedding,
				"bbox":       []float64{2, 2, 12, 12},
				"det_score":  0.99,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"faces_count": len(faces),
			"faces":       faces,
			"model":       "test",
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func writeSolidPNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	writeFile(t, path, buf.String())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func clearHadirEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HADIR_CONFIG_PATH", "HADIR_THRESHOLD", "HADIR_CADENCE", "HADIR_CUTOFF",
		"HADIR_EMBEDDING_URL", "HADIR_EMBEDDING_SCALE", "HADIR_ENROLL_DIR", "HADIR_ROSTER_FILE",
		"HADIR_LEDGER_FILE", "HADIR_ARCHIVE_DIR", "HADIR_CACHE_FILE", "HADIR_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("HADIR_LOG_LEVEL", "error")
}

func executeCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("cmd.Execute(%q): %v\n%s", args, err, buf.String())
	}
	return buf.String()
}

func executeCommandErr(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func assertContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output %q missing substring %q", output, want)
	}
}

func assertNotContains(t *testing.T, output, want string) {
	t.Helper()
	if strings.Contains(output, want) {
		t.Fatalf("output %q unexpectedly contained substring %q", output, want)
	}
}

func newTempManager(t *testing.T) *files.Manager {
	t.Helper()
	base := t.TempDir()
	mgr, err := files.NewManager(base)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}
