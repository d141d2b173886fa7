// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the build stages in order.
//
// A build is a fixed sequence of stages, from creating the build
// directories to publishing the finished image. Each stage runs to
// completion before the next one starts. Stages that fan out over
// files (relink-objects, strip-objects) wait for every worker before
// returning, so the end of a stage is a full barrier. The barriers
// that later stages depend on are named and logged when crossed:
//
//	rlibs-merged        multi-object rlibs have been merged into objects
//	modules-populated   the modules directory holds one object per crate
//	modules-normalized  every module has been partially relinked
//	modules-stripped    debug information has been split off
//
// [Run] holds the build directory lock for the whole run and tags the
// first failure with its stage in a [StageError].
package pipeline
