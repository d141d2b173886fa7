// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the build configuration.
//
// Loading happens in layers, each applied over the previous one:
//
//  1. [Default] supplies a value for every key, so a configuration file
//     only has to name what it changes.
//  2. The configuration file, YAML (.yaml, .yml) or JSONC (.json,
//     .jsonc). Decoding is strict: unknown keys and wrongly typed
//     values are errors.
//  3. Command-line overrides of the form section.key=value, or
//     section.key=[ a b c ] spread over several arguments for lists.
//     Values parse as integer, float or boolean when they can and are
//     strings otherwise. Hyphens in keys are accepted for underscores.
//  4. ${VAR} and ${VAR:-default} expansion in every string. ROOT,
//     BUILD_DIR, ARCH, TARGET and BUILD_MODE are predefined from the
//     configuration itself; variables from env_file (dotenv syntax)
//     come next, then the process environment.
//
// [Config.Validate] reports every problem at once.
//
// Key exports:
//
//   - [Config] and its per-stage sections
//   - [Default], [Load], [LoadFile], [ParseOverrides]
//   - [Config.MakeVariables] for the gen-mk-config command
package config
