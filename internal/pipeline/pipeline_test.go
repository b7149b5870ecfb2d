package pipeline

import (
	"context"
	"errors"
	stdmath "math"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/assetpipe/usdthumb/internal/config"
	"github.com/assetpipe/usdthumb/internal/logger"
	"github.com/assetpipe/usdthumb/internal/render"
	"github.com/assetpipe/usdthumb/pkg/usd"
	"github.com/assetpipe/usdthumb/pkg/usdz"
)

func TestMain(m *testing.M) {
	logger.InitWithFileConfig("debug", logger.FileConfig{}, false)
	os.Exit(m.Run())
}

// chdir changes the working directory for the duration of the test,
// restoring the previous directory at cleanup. (t.Chdir requires Go 1.24.)
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restoring wd: %v", err)
		}
	})
}

// fakeRecorder stands in for usdrecord: it snapshots the camera layer (which
// is deleted at cleanup) and writes a placeholder image.
type fakeRecorder struct {
	calls       int
	req         render.Request
	cameraLayer []byte
	fail        bool
}

func (f *fakeRecorder) Record(_ context.Context, req render.Request) error {
	f.calls++
	f.req = req
	f.cameraLayer, _ = os.ReadFile(req.InputLayer)
	if f.fail {
		return render.ErrRenderFailed
	}
	return os.WriteFile(req.OutputImage, []byte("not really a png"), 0o644)
}

// writeCubeSubject authors a 2x2x2 cube subject layer in the working
// directory and returns its name.
func writeCubeSubject(t *testing.T, name, upAxis string) string {
	t.Helper()
	stage := usd.New(name)
	stage.DefaultPrim = "Cube"
	stage.UpAxis = upAxis
	stage.MetersPerUnit = 0.01
	geom := stage.DefinePrim("/Cube/Geom", "Mesh")
	geom.SetAttr("extent", "float3[]", [][3]float64{{-1, -1, -1}, {1, 1, 1}})
	if err := stage.Save(); err != nil {
		t.Fatalf("writing subject: %v", err)
	}
	return name
}

func testConfig(subject string) *config.Config {
	cfg := config.Default()
	cfg.Subject = subject
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	chdir(t, t.TempDir())
	subject := writeCubeSubject(t, "cube.usda", "Y")
	rec := &fakeRecorder{}

	if err := Run(context.Background(), testConfig(subject), rec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if rec.calls != 1 {
		t.Fatalf("renderer invoked %d times, want 1", rec.calls)
	}
	if rec.req.CameraName != "ZCamera" {
		t.Errorf("camera name = %q, want ZCamera", rec.req.CameraName)
	}
	if rec.req.Width != 2048 {
		t.Errorf("render width = %d, want 2048", rec.req.Width)
	}

	// The subject now references an existing image ending in .png.
	reopened, err := usd.Open(subject)
	if err != nil {
		t.Fatalf("reopening subject: %v", err)
	}
	thumb, ok := usd.DefaultThumbnail(reopened)
	if !ok {
		t.Fatal("subject has no thumbnail metadata")
	}
	if !strings.HasSuffix(thumb, ".png") {
		t.Errorf("thumbnail = %q, want a .png path", thumb)
	}
	if _, err := os.Stat(thumb); err != nil {
		t.Errorf("thumbnail image missing on disk: %v", err)
	}

	// Working files are gone; the image is not.
	if _, err := os.Stat("camera.usda"); !os.IsNotExist(err) {
		t.Error("camera.usda not cleaned up")
	}
	if _, err := os.Stat("y_up.usda"); !os.IsNotExist(err) {
		t.Error("unexpected y_up.usda for a Y-up subject")
	}
}

func TestRunFramesWholeCube(t *testing.T) {
	chdir(t, t.TempDir())
	subject := writeCubeSubject(t, "cube.usda", "Y")
	rec := &fakeRecorder{}

	if err := Run(context.Background(), testConfig(subject), rec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Re-project the cube corners against the authored camera and confirm
	// every one lands inside the field of view.
	camLayer, err := usd.Parse(rec.cameraLayer)
	if err != nil {
		t.Fatalf("parsing captured camera layer: %v", err)
	}
	if len(camLayer.SubLayers) != 1 || camLayer.SubLayers[0] != subject {
		t.Errorf("camera sublayers = %v, want [%s]", camLayer.SubLayers, subject)
	}

	cam := camLayer.GetPrim("/ZCamera")
	if cam == nil {
		t.Fatal("camera layer has no /ZCamera prim")
	}
	focal, _ := cam.Float("focalLength")
	hAp, _ := cam.Float("horizontalAperture")
	vAp, _ := cam.Float("verticalAperture")
	translate := cam.GetAttr("xformOp:translate").Value.([3]float64)
	clip := cam.GetAttr("clippingRange").Value.([2]float64)

	if clip[0] <= 0 {
		t.Errorf("near clip = %v, want > 0", clip[0])
	}
	tanHalfH := hAp / (2 * focal)
	tanHalfV := vAp / (2 * focal)
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				depth := translate[2] - sz
				const eps = 1e-9
				if stdmath.Abs(sx-translate[0]) > depth*tanHalfH+eps ||
					stdmath.Abs(sy-translate[1]) > depth*tanHalfV+eps {
					t.Errorf("corner (%v,%v,%v) outside the field of view", sx, sy, sz)
				}
			}
		}
	}
}

func TestRunNormalizesZUpSubject(t *testing.T) {
	chdir(t, t.TempDir())
	subject := writeCubeSubject(t, "cube.usda", "Z")
	rec := &fakeRecorder{}

	if err := Run(context.Background(), testConfig(subject), rec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	camLayer, err := usd.Parse(rec.cameraLayer)
	if err != nil {
		t.Fatalf("parsing captured camera layer: %v", err)
	}
	if len(camLayer.SubLayers) != 1 || camLayer.SubLayers[0] != "y_up.usda" {
		t.Errorf("camera sublayers = %v, want the up-axis wrapper", camLayer.SubLayers)
	}

	// The wrapper is a working file and must be reclaimed.
	if _, err := os.Stat("y_up.usda"); !os.IsNotExist(err) {
		t.Error("y_up.usda not cleaned up")
	}
}

func TestRunAttachesDomeLight(t *testing.T) {
	chdir(t, t.TempDir())
	subject := writeCubeSubject(t, "cube.usda", "Y")
	rec := &fakeRecorder{}

	cfg := testConfig(subject)
	cfg.Render.DomeLight = "studio.hdr"
	if err := Run(context.Background(), cfg, rec); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	camLayer, err := usd.Parse(rec.cameraLayer)
	if err != nil {
		t.Fatalf("parsing captured camera layer: %v", err)
	}
	light := camLayer.GetPrim("/EnvLight")
	if light == nil {
		t.Fatal("camera layer has no dome light prim")
	}
	if a := light.GetAttr("inputs:texture:file"); a == nil || a.Value != "studio.hdr" {
		t.Errorf("dome light texture = %v", a)
	}
}

func TestRunRenderFailureStillCleansUp(t *testing.T) {
	chdir(t, t.TempDir())
	subject := writeCubeSubject(t, "cube.usda", "Y")
	rec := &fakeRecorder{fail: true}

	err := Run(context.Background(), testConfig(subject), rec)
	if !errors.Is(err, render.ErrRenderFailed) {
		t.Fatalf("Run: err = %v, want ErrRenderFailed", err)
	}
	if !strings.Contains(err.Error(), "rendering") {
		t.Errorf("error does not name the failing stage: %v", err)
	}

	// No thumbnail was linked.
	reopened, _ := usd.Open(subject)
	if _, ok := usd.DefaultThumbnail(reopened); ok {
		t.Error("thumbnail linked despite render failure")
	}
	// Already-created temporaries are still reclaimed.
	if _, err := os.Stat("camera.usda"); !os.IsNotExist(err) {
		t.Error("camera.usda not cleaned up after failure")
	}
}

func TestRunEmptySubjectNotBoundable(t *testing.T) {
	chdir(t, t.TempDir())
	stage := usd.New("empty.usda")
	stage.DefaultPrim = "Empty"
	stage.DefinePrim("/Empty", "Xform")
	if err := stage.Save(); err != nil {
		t.Fatal(err)
	}
	rec := &fakeRecorder{}

	err := Run(context.Background(), testConfig("empty.usda"), rec)
	if !errors.Is(err, usd.ErrNotBoundable) {
		t.Fatalf("Run: err = %v, want ErrNotBoundable", err)
	}
	if rec.calls != 0 {
		t.Error("renderer invoked despite unboundable subject")
	}
}

func TestRunMissingSubject(t *testing.T) {
	chdir(t, t.TempDir())
	err := Run(context.Background(), testConfig("missing.usda"), &fakeRecorder{})
	if !errors.Is(err, usd.ErrNotFound) {
		t.Fatalf("Run: err = %v, want ErrNotFound", err)
	}
}

func TestRunUsdzSubjectPersistsThumbnail(t *testing.T) {
	chdir(t, t.TempDir())

	writeCubeSubject(t, "cube.usda", "Y")
	if err := usdz.Pack("cube.usdz", []string{"cube.usda"}); err != nil {
		t.Fatalf("packing subject: %v", err)
	}
	os.Remove("cube.usda")

	// No usdz result requested: the linked metadata must still land in the
	// subject archive itself, not die with the extracted working copy.
	if err := Run(context.Background(), testConfig("cube.usdz"), &fakeRecorder{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat("cube.usda"); !os.IsNotExist(err) {
		t.Error("extracted layer not cleaned up")
	}

	members, err := usdz.Extract("cube.usdz", "unpacked")
	if err != nil {
		t.Fatalf("re-extracting subject archive: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("subject archive members = %v, want the root layer only", members)
	}
	root, err := usd.Open(members[0])
	if err != nil {
		t.Fatalf("opening repacked root layer: %v", err)
	}
	thumb, ok := usd.DefaultThumbnail(root)
	if !ok {
		t.Fatal("repacked root layer has no thumbnail metadata")
	}
	if !strings.HasSuffix(thumb, ".png") {
		t.Errorf("thumbnail = %q, want a .png path", thumb)
	}
}

func TestRunUsdzSubjectRepackaged(t *testing.T) {
	chdir(t, t.TempDir())

	// A packaged subject: root layer plus one texture member.
	writeCubeSubject(t, "cube.usda", "Y")
	if err := os.WriteFile("diffuse.png", []byte("texture"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := usdz.Pack("cube.usdz", []string{"cube.usda", "diffuse.png"}); err != nil {
		t.Fatalf("packing subject: %v", err)
	}
	os.Remove("cube.usda")
	os.Remove("diffuse.png")

	cfg := testConfig("cube.usdz")
	cfg.Output.CreateUsdzResult = true
	if err := Run(context.Background(), cfg, &fakeRecorder{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The result archive holds exactly the original members plus one image.
	members, err := usdz.List("cube_Thumbnail.usdz")
	if err != nil {
		t.Fatalf("listing result archive: %v", err)
	}
	sort.Strings(members)
	want := []string{"cube.usda", "diffuse.png", "renders/cube.png"}
	if len(members) != len(want) {
		t.Fatalf("result members = %v, want %v", members, want)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Errorf("member %d = %q, want %q", i, members[i], want[i])
		}
	}

	// The unpacked intermediates are reclaimed from the working directory.
	for _, name := range []string{"cube.usda", "diffuse.png", "camera.usda"} {
		if _, err := os.Stat(name); !os.IsNotExist(err) {
			t.Errorf("intermediate %s left in working directory", name)
		}
	}
}
