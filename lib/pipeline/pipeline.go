// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/theseus-os/cellbuild/lib/bootimage"
	"github.com/theseus-os/cellbuild/lib/buildlock"
	"github.com/theseus-os/cellbuild/lib/config"
	"github.com/theseus-os/cellbuild/lib/debugsplit"
	"github.com/theseus-os/cellbuild/lib/publish"
	"github.com/theseus-os/cellbuild/lib/relink"
	"github.com/theseus-os/cellbuild/lib/rlib"
	"github.com/theseus-os/cellbuild/lib/toolexec"
)

// Stage names.
const (
	StageDirectories      = "directories"
	StageBuildCells       = "build-cells"
	StageLinkNanocore     = "link-nanocore"
	StageRelinkRlibs      = rlib.Stage
	StageCopyCrateObjects = "copy-crate-objects"
	StageRelinkObjects    = relink.Stage
	StageStripObjects     = debugsplit.Stage
	StageAddBootloader    = bootimage.Stage
	StageWriteManifest    = "write-manifest"
	StagePublish          = publish.Stage
)

// Barrier names.
const (
	BarrierRlibsMerged       = "rlibs-merged"
	BarrierModulesPopulated  = "modules-populated"
	BarrierModulesNormalized = "modules-normalized"
	BarrierModulesStripped   = "modules-stripped"
)

// Env is the state shared by the stages of one run. Config is
// read-only once the run starts.
type Env struct {
	Config *config.Config
	Runner toolexec.Runner
	Logger *slog.Logger

	// PublishClient replaces the S3 client built from the publish
	// configuration.
	PublishClient publish.Client

	// Now and NewID are passed to the manifest builder.
	Now   func() time.Time
	NewID func() string

	// merged is filled by relink-rlibs and consumed by
	// copy-crate-objects.
	merged []rlib.MergedObject
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Stage is one step of the build.
type Stage struct {
	Name    string
	Summary string

	// Barrier, when set, is logged once the stage has completed.
	Barrier string

	Run func(ctx context.Context, env *Env, logger *slog.Logger) error
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{
		{Name: StageDirectories, Summary: "Create the build directories", Run: makeDirectories},
		{Name: StageBuildCells, Summary: "Build every crate with cargo", Run: buildCells},
		{Name: StageLinkNanocore, Summary: "Assemble and link the nanocore", Run: linkNanocore},
		{Name: StageRelinkRlibs, Summary: "Merge multi-object rlibs into single objects", Barrier: BarrierRlibsMerged, Run: relinkRlibs},
		{Name: StageCopyCrateObjects, Summary: "Select one object per crate and copy the modules", Barrier: BarrierModulesPopulated, Run: copyCrateObjects},
		{Name: StageRelinkObjects, Summary: "Partially relink every module", Barrier: BarrierModulesNormalized, Run: relinkObjects},
		{Name: StageStripObjects, Summary: "Split debug information out of every module", Barrier: BarrierModulesStripped, Run: stripObjects},
		{Name: StageAddBootloader, Summary: "Assemble the bootable image", Run: addBootloader},
		{Name: StageWriteManifest, Summary: "Record the module digests of this build", Run: writeManifest},
		{Name: StagePublish, Summary: "Upload the image and manifest", Run: publishOutputs},
	}
}

// Names returns the stage names in execution order.
func Names() []string {
	stages := Stages()
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = stage.Name
	}
	return names
}

// Select returns the named stages in execution order, whatever order
// the names are given in. No names selects every stage.
func Select(names []string) ([]Stage, error) {
	all := Stages()
	if len(names) == 0 {
		return all, nil
	}
	known := Names()
	var errs []error
	for _, name := range names {
		if !slices.Contains(known, name) {
			errs = append(errs, fmt.Errorf("unknown stage %q", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	var selected []Stage
	for _, stage := range all {
		if slices.Contains(names, stage.Name) {
			selected = append(selected, stage)
		}
	}
	return selected, nil
}

// StageError tags a failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return "[" + e.Stage + "] " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Run executes stages in order while holding the build directory lock.
// The first failure stops the run.
func Run(ctx context.Context, env *Env, stages []Stage) error {
	logger := env.logger()

	lock, err := buildlock.Acquire(env.Config.BuildDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: stage.Name, Err: err}
		}
		stageLogger := logger.With("stage", stage.Name)
		start := time.Now()
		if err := stage.Run(ctx, env, stageLogger); err != nil {
			return &StageError{Stage: stage.Name, Err: err}
		}
		stageLogger.Debug("stage finished", "elapsed", time.Since(start))
		if stage.Barrier != "" {
			stageLogger.Info("barrier crossed", "barrier", stage.Barrier)
		}
	}
	return nil
}
