// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootimage assembles the bootable ISO9660 image from the
// finished module directory.
//
// Two boot loaders are supported and selected by name:
//
//   - grub: a grub.cfg with one module2 directive per module is written
//     into the image tree and grub-mkrescue authors the ISO.
//   - limine: the whole module directory is packed into one newc cpio
//     archive, LZ4-block compressed, and written as modules.cpio.lz4 so
//     the loader reads one file at boot. The limine prebuilt binaries
//     are fetched and extracted into a local cache on first use,
//     xorriso authors a hybrid El Torito + EFI image, and limine-deploy
//     installs the loader into the image's boot sector.
//
// The boot loader name is checked before any file is touched or tool
// runs. Failures abort immediately and leave whatever was produced so
// far in place.
package bootimage
