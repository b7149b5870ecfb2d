// Package pipeline sequences one thumbnail invocation: camera setup, external
// render, thumbnail linking, optional archive packing, and cleanup.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/assetpipe/usdthumb/internal/config"
	"github.com/assetpipe/usdthumb/internal/logger"
	"github.com/assetpipe/usdthumb/internal/render"
	"github.com/assetpipe/usdthumb/pkg/camera"
	"github.com/assetpipe/usdthumb/pkg/usd"
	"github.com/assetpipe/usdthumb/pkg/usdz"
)

// Fixed working file and prim names used across one invocation.
const (
	cameraLayerName  = "camera.usda"
	yUpLayerName     = "y_up.usda"
	cameraPrimName   = "ZCamera"
	domeLightName    = "EnvLight"
	archiveSuffix    = "_Thumbnail"
	archiveExtension = ".usdz"
)

// stage names the orchestrator states. Each is echoed before executing when
// verbose logging is on, and prefixes the error of a failing step.
type stage int

const (
	stageCameraSetup stage = iota
	stageRendering
	stageLinking
	stageArchivePacking
	stageCleanup
)

func (s stage) String() string {
	switch s {
	case stageCameraSetup:
		return "camera setup"
	case stageRendering:
		return "rendering"
	case stageLinking:
		return "linking"
	case stageArchivePacking:
		return "archive packing"
	case stageCleanup:
		return "cleanup"
	}
	return "unknown"
}

// invocation owns the transient artifacts of a single run. All temporary
// files except the final image are removed at cleanup, on success and on
// every failure path that reaches it.
type invocation struct {
	cfg *config.Config
	rec render.Recorder

	subjectLayer string   // the layer that receives the thumbnail metadata
	frameLayer   string   // the layer the camera actually frames (wrapper or subject)
	imagePath    string
	extracted    []string // members unpacked from a usdz subject
	temps        []string // working files removed at cleanup
}

// Run produces a thumbnail for the configured subject. It is single-shot:
// any failing step aborts the remaining ones, and there is no retry.
func Run(ctx context.Context, cfg *config.Config, rec render.Recorder) error {
	inv := &invocation{cfg: cfg, rec: rec}
	defer inv.cleanup()

	steps := []struct {
		s  stage
		fn func(context.Context) error
	}{
		{stageCameraSetup, inv.cameraSetup},
		{stageRendering, inv.rendering},
		{stageLinking, inv.linking},
		{stageArchivePacking, inv.archivePacking},
	}
	for _, step := range steps {
		logger.Stage(step.s.String())
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.s, err)
		}
	}
	return nil
}

// cameraSetup opens the subject, normalizes its up-axis if needed, and
// authors the camera layer with the computed placement.
func (inv *invocation) cameraSetup(_ context.Context) error {
	if err := inv.resolveSubject(); err != nil {
		return err
	}

	subject, err := usd.Open(inv.subjectLayer)
	if err != nil {
		return err
	}

	frame := subject
	if subject.UpAxis == "Z" {
		frame, err = usd.NormalizeUpAxis(subject, yUpLayerName)
		if err != nil {
			return err
		}
		inv.temps = append(inv.temps, yUpLayerName)
	}
	inv.frameLayer = frame.Path

	box, err := usd.ComputeWorldBound(frame)
	if err != nil {
		return err
	}

	optics := camera.DefaultOptics().WithAspect(inv.cfg.Output.Width, inv.cfg.Output.Height)
	placement, err := camera.ComputePlacement(box, optics, frame.UnitsToMm())
	if err != nil {
		return err
	}
	logger.Info("camera placed",
		zap.Float64("distance", placement.Translation.Z-box.Max.Z),
		zap.Float64("nearClip", placement.NearClip),
		zap.Float64("farClip", placement.FarClip))

	return inv.writeCameraLayer(frame, optics, placement)
}

// writeCameraLayer authors the camera (and optional dome light) above the
// subject, which is attached as a sublayer.
func (inv *invocation) writeCameraLayer(frame *usd.Stage, optics camera.Optics, placement camera.Placement) error {
	cam := usd.New(cameraLayerName)
	cam.DefaultPrim = cameraPrimName
	cam.UpAxis = "Y"
	cam.MetersPerUnit = frame.MetersPerUnit
	cam.SubLayers = []string{frame.Path}

	prim := cam.DefinePrim("/"+cameraPrimName, "Camera")
	prim.SetAttr("focalLength", "float", optics.FocalLength)
	prim.SetAttr("horizontalAperture", "float", optics.HorizontalAperture)
	prim.SetAttr("verticalAperture", "float", optics.VerticalAperture)
	prim.SetAttr("clippingRange", "float2", [2]float64{placement.NearClip, placement.FarClip})
	prim.SetAttr("xformOp:translate", "double3", [3]float64{
		placement.Translation.X, placement.Translation.Y, placement.Translation.Z,
	})
	prim.SetAttr("xformOpOrder", "uniform token[]", []string{"xformOp:translate"})

	if inv.cfg.Render.DomeLight != "" {
		light := cam.DefinePrim("/"+domeLightName, "DomeLight")
		light.SetAttr("inputs:texture:file", "asset", inv.cfg.Render.DomeLight)
	}

	inv.temps = append(inv.temps, cameraLayerName)
	return cam.Save()
}

// resolveSubject maps the configured subject to the layer file to operate on,
// unpacking usdz subjects into the working directory first.
func (inv *invocation) resolveSubject() error {
	subject := inv.cfg.Subject
	if strings.EqualFold(filepath.Ext(subject), archiveExtension) {
		members, err := usdz.Extract(subject, ".")
		if err != nil {
			return err
		}
		inv.extracted = members
		inv.temps = append(inv.temps, members...)
		for _, m := range members {
			ext := filepath.Ext(m)
			if ext == ".usda" || ext == ".usdc" || ext == ".usd" {
				inv.subjectLayer = m
				return nil
			}
		}
		return fmt.Errorf("%w: archive holds no scene layer", usdz.ErrBadArchive)
	}
	inv.subjectLayer = subject
	return nil
}

// rendering invokes the external renderer for exactly one frame and blocks
// until it exits.
func (inv *invocation) rendering(ctx context.Context) error {
	if err := os.MkdirAll(inv.cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	inv.imagePath = filepath.Join(inv.cfg.Output.Dir,
		subjectBase(inv.cfg.Subject)+"."+inv.cfg.Output.Extension)

	return inv.rec.Record(ctx, render.Request{
		InputLayer:  cameraLayerName,
		OutputImage: inv.imagePath,
		CameraName:  cameraPrimName,
		Width:       inv.cfg.Output.Width,
		Renderer:    inv.cfg.Render.Renderer,
	})
}

// linking records the rendered image as the subject's default thumbnail.
// This mutates the subject's persisted metadata. For archived subjects the
// extracted layer is reclaimed at cleanup, so the archive itself is repacked
// in place to carry the new metadata.
func (inv *invocation) linking(_ context.Context) error {
	subject, err := usd.Open(inv.subjectLayer)
	if err != nil {
		return err
	}
	if err := usd.SetDefaultThumbnail(subject, inv.imagePath); err != nil {
		return err
	}

	if len(inv.extracted) > 0 {
		members := []string{inv.subjectLayer}
		for _, m := range inv.extracted {
			if m != inv.subjectLayer {
				members = append(members, m)
			}
		}
		if err := usdz.Pack(inv.cfg.Subject, members); err != nil {
			return fmt.Errorf("repacking subject archive: %w", err)
		}
	}

	logger.Info("thumbnail linked", zap.String("image", inv.imagePath))
	return nil
}

// archivePacking repackages the subject, any wrapper layer and the image into
// a single usdz result. Skipped unless requested.
func (inv *invocation) archivePacking(_ context.Context) error {
	if !inv.cfg.Output.CreateUsdzResult {
		return nil
	}

	members := []string{inv.subjectLayer}
	if inv.frameLayer != inv.subjectLayer {
		members = append(members, inv.frameLayer)
	}
	for _, m := range inv.extracted {
		if m != inv.subjectLayer {
			members = append(members, m)
		}
	}
	members = append(members, inv.imagePath)

	archive := filepath.Join(filepath.Dir(inv.cfg.Subject),
		subjectBase(inv.cfg.Subject)+archiveSuffix+archiveExtension)
	if err := usdz.Pack(archive, members); err != nil {
		return err
	}
	logger.Info("archive packed", zap.String("archive", archive), zap.Int("members", len(members)))
	return nil
}

// cleanup removes every temporary artifact. Failures are logged and do not
// fail the invocation.
func (inv *invocation) cleanup() {
	logger.Stage(stageCleanup.String())
	for _, path := range inv.temps {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("could not remove working file",
				zap.String("path", path), zap.Error(err))
		}
	}
}

// subjectBase is the subject's file name without directory or extension.
func subjectBase(subject string) string {
	base := filepath.Base(subject)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
