// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable consulted for the config path
// when no --config flag is given.
const EnvironmentVariable = "CELLBUILD_CONFIG"

// DefaultPath is used when neither the flag nor the environment names a
// file. It is optional: when it does not exist the defaults apply.
const DefaultPath = "cellbuild.yaml"

// Config is the complete build configuration.
type Config struct {
	// Root is the kernel source tree.
	Root string `yaml:"root"`

	// BuildDir holds every build output.
	BuildDir string `yaml:"build_dir"`

	Arch      string `yaml:"arch"`
	Target    string `yaml:"target"`
	BuildMode string `yaml:"build_mode"`

	OutputISO    string `yaml:"output_iso"`
	NanocorePath string `yaml:"nanocore_path"`

	// Jobs bounds the parallel stages. Zero means one per CPU.
	Jobs int `yaml:"jobs"`

	// EnvFile is an optional dotenv file consulted during variable
	// expansion.
	EnvFile string `yaml:"env_file"`

	Directories      DirectoriesConfig      `yaml:"directories"`
	Prefixes         PrefixesConfig         `yaml:"prefixes"`
	BuildCells       BuildCellsConfig       `yaml:"build_cells"`
	LinkNanocore     LinkNanocoreConfig     `yaml:"link_nanocore"`
	RelinkRlibs      RelinkRlibsConfig      `yaml:"relink_rlibs"`
	CopyCrateObjects CopyCrateObjectsConfig `yaml:"copy_crate_objects"`
	RelinkObjects    RelinkObjectsConfig    `yaml:"relink_objects"`
	StripObjects     StripObjectsConfig     `yaml:"strip_objects"`
	AddBootloader    AddBootloaderConfig    `yaml:"add_bootloader"`
	RunQemu          RunQemuConfig          `yaml:"run_qemu"`
	GenMkConfig      GenMkConfigConfig      `yaml:"gen_mk_config"`
	Publish          PublishConfig          `yaml:"publish"`

	// Discover lists the subdirectories of Root the discover command
	// describes.
	Discover []string `yaml:"discover"`
}

// DirectoriesConfig names the build directories.
type DirectoriesConfig struct {
	Nanocore       string `yaml:"nanocore"`
	IsoFiles       string `yaml:"isofiles"`
	Modules        string `yaml:"modules"`
	Deps           string `yaml:"deps"`
	Target         string `yaml:"target"`
	TargetDeps     string `yaml:"target_deps"`
	ExtractedRlibs string `yaml:"extracted_rlibs"`
	DebugSymbols   string `yaml:"debug_symbols"`
	Sysroot        string `yaml:"sysroot"`
}

// PrefixesConfig holds the module name prefixes per crate class.
type PrefixesConfig struct {
	Kernel       string `yaml:"kernel"`
	Applications string `yaml:"applications"`
}

// BuildCellsConfig configures the cargo build.
type BuildCellsConfig struct {
	Cargo        string   `yaml:"cargo"`
	Toolchain    string   `yaml:"toolchain"`
	ManifestPath string   `yaml:"manifest_path"`
	CargoFlags   []string `yaml:"cargo_flags"`
	RustFlags    []string `yaml:"rust_flags"`
}

// LinkNanocoreConfig configures the nanocore link.
type LinkNanocoreConfig struct {
	Assembler        string `yaml:"assembler"`
	Linker           string `yaml:"linker"`
	StaticLibPath    string `yaml:"static_lib_path"`
	AsmSourcesDir    string `yaml:"asm_sources_dir"`
	LinkerScriptPath string `yaml:"linker_script_path"`
}

// RelinkRlibsConfig configures the rlib unpacker.
type RelinkRlibsConfig struct {
	Linker        string `yaml:"linker"`
	RemoveScratch bool   `yaml:"remove_scratch"`
}

// CopyCrateObjectsConfig configures crate discovery and module copying.
type CopyCrateObjectsConfig struct {
	// KernelCrates and ApplicationCrates are a crate tree or a list
	// file each.
	KernelCrates      string   `yaml:"kernel_crates"`
	ApplicationCrates string   `yaml:"application_crates"`
	ManifestName      string   `yaml:"manifest_name"`
	ExtraTargetDirs   []string `yaml:"extra_target_dirs"`
	ExtraApps         []string `yaml:"extra_apps"`
	Verbose           bool     `yaml:"verbose"`
}

// RelinkObjectsConfig configures section normalization.
type RelinkObjectsConfig struct {
	Linker                 string `yaml:"linker"`
	Stripper               string `yaml:"stripper"`
	PartialRelinkingScript string `yaml:"partial_relinking_script"`
}

// StripObjectsConfig configures debug splitting.
type StripObjectsConfig struct {
	Stripper      string `yaml:"stripper"`
	StripNanocore bool   `yaml:"strip_nanocore"`
}

// AddBootloaderConfig configures image assembly.
type AddBootloaderConfig struct {
	Bootloader          string `yaml:"bootloader"`
	GrubMkrescue        string `yaml:"grub_mkrescue"`
	NanocoreDestination string `yaml:"nanocore_destination"`
	LimineConfig        string `yaml:"limine_config"`
	LimineTarball       string `yaml:"limine_tarball"`
	TarballPath         string `yaml:"tarball_path"`
	ExtractDir          string `yaml:"extract_dir"`
	ExpectedSubdir      string `yaml:"expected_subdir"`
	Downloader          string `yaml:"downloader"`
	Extractor           string `yaml:"extractor"`
	Xorriso             string `yaml:"xorriso"`
	Make                string `yaml:"make"`
	Tar                 string `yaml:"tar"`
	SizePrefix          string `yaml:"size_prefix"`
}

// RunQemuConfig configures the run-qemu command.
type RunQemuConfig struct {
	Qemu      string   `yaml:"qemu"`
	ExtraArgs []string `yaml:"extra_args"`
}

// GenMkConfigConfig configures the gen-mk-config command.
type GenMkConfigConfig struct {
	Output string `yaml:"output"`
}

// PublishConfig configures the optional upload of build outputs.
type PublishConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default returns the configuration used for every key a file or
// override does not set.
func Default() *Config {
	return &Config{
		Root:         ".",
		BuildDir:     "${ROOT}/build",
		Arch:         "x86_64",
		Target:       "x86_64-theseus",
		BuildMode:    "release",
		OutputISO:    "${BUILD_DIR}/theseus-${ARCH}.iso",
		NanocorePath: "${BUILD_DIR}/nanocore/nano_core-${ARCH}.bin",
		Directories: DirectoriesConfig{
			Nanocore:       "${BUILD_DIR}/nanocore",
			IsoFiles:       "${BUILD_DIR}/isofiles",
			Modules:        "${BUILD_DIR}/isofiles/modules",
			Deps:           "${BUILD_DIR}/deps",
			Target:         "${BUILD_DIR}/target",
			TargetDeps:     "${BUILD_DIR}/target/${TARGET}/${BUILD_MODE}/deps",
			ExtractedRlibs: "${BUILD_DIR}/extracted_rlibs",
			DebugSymbols:   "${BUILD_DIR}/debug_symbols",
			Sysroot:        "${BUILD_DIR}/deps/sysroot/lib/rustlib/${TARGET}/lib",
		},
		Prefixes: PrefixesConfig{
			Kernel:       "k#",
			Applications: "a#",
		},
		BuildCells: BuildCellsConfig{
			Cargo:        "cargo",
			Toolchain:    "nightly",
			ManifestPath: "${ROOT}/Cargo.toml",
			CargoFlags:   []string{},
			RustFlags:    []string{},
		},
		LinkNanocore: LinkNanocoreConfig{
			Assembler:        "nasm",
			Linker:           "ld",
			StaticLibPath:    "${BUILD_DIR}/target/${TARGET}/${BUILD_MODE}/libnano_core.a",
			AsmSourcesDir:    "${ROOT}/kernel/nano_core/src/boot/arch_${ARCH}",
			LinkerScriptPath: "${ROOT}/kernel/nano_core/linker_higher_half-${ARCH}.ld",
		},
		RelinkRlibs: RelinkRlibsConfig{
			Linker:        "ld",
			RemoveScratch: true,
		},
		CopyCrateObjects: CopyCrateObjectsConfig{
			KernelCrates:      "${ROOT}/kernel",
			ApplicationCrates: "${ROOT}/applications",
			ManifestName:      "Cargo.toml",
			ExtraTargetDirs:   []string{},
			ExtraApps:         []string{},
		},
		RelinkObjects: RelinkObjectsConfig{
			Linker:                 "ld",
			Stripper:               "strip",
			PartialRelinkingScript: "${ROOT}/cfg/partial_linking_combine_sections.ld",
		},
		StripObjects: StripObjectsConfig{
			Stripper:      "strip",
			StripNanocore: true,
		},
		AddBootloader: AddBootloaderConfig{
			Bootloader:          "grub",
			GrubMkrescue:        "grub-mkrescue",
			NanocoreDestination: "${BUILD_DIR}/isofiles/boot/kernel.bin",
			LimineConfig:        "built-in",
			LimineTarball:       "https://github.com/limine-bootloader/limine/archive/refs/tags/v4.20230120.0-binary.tar.gz",
			TarballPath:         "${BUILD_DIR}/limine.tar.gz",
			ExtractDir:          "${BUILD_DIR}/limine-prebuilt",
			ExpectedSubdir:      "${BUILD_DIR}/limine-prebuilt/limine-4.20230120.0-binary",
			Downloader:          "wget",
			Extractor:           "builtin",
			Xorriso:             "xorriso",
			Make:                "make",
			Tar:                 "tar",
			SizePrefix:          "framed",
		},
		RunQemu: RunQemuConfig{
			Qemu: "qemu-system-x86_64",
			ExtraArgs: []string{
				"-cdrom", "${BUILD_DIR}/theseus-${ARCH}.iso",
				"-no-reboot", "-no-shutdown", "-s",
				"-m", "512M", "-serial", "mon:stdio",
				"-cpu", "Broadwell",
			},
		},
		GenMkConfig: GenMkConfigConfig{
			Output: "${BUILD_DIR}/config.mk",
		},
		Publish: PublishConfig{
			Region: "us-east-1",
			Prefix: "theseus",
			UseSSL: true,
		},
		Discover: []string{"kernel", "applications"},
	}
}

// Load resolves the configuration file path, loads it and applies the
// overrides. An empty path falls back to $CELLBUILD_CONFIG and then to
// DefaultPath if that file exists.
func Load(path string, overrides []string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		path = DefaultPath
		explicit = false
	}

	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cfg.finish(overrides); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads one configuration file over the defaults, without
// overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.finish(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish(overrides []string) error {
	if len(overrides) > 0 {
		parsed, err := ParseOverrides(overrides)
		if err != nil {
			return err
		}
		if err := c.applyOverrides(parsed); err != nil {
			return err
		}
	}
	return c.expandVariables()
}

// loadFile decodes a configuration file over c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := decodeStrict(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// decodeStrict decodes YAML (or JSON, a subset) rejecting unknown keys.
// An empty document leaves c unchanged.
func decodeStrict(data []byte, c *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
