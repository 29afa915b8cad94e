package shard

// applyProtection is the hook where a platform-specific file-protection
// attribute (spec §6: "opaque enum applied as an OS file attribute when
// writing") would be set. No target platform in the build matrix exposes a
// direct equivalent of Apple's NSFileProtection flags through a Go stdlib
// syscall, so nyarudb records the tag on the shard (for round-tripping
// through configuration) without a kernel-level effect here — exactly the
// "modeled as an opaque tag passed through to the OS" scope spec.md §1
// assigns to file-protection.
func applyProtection(path string, p Protection) error {
	_ = path
	_ = p
	return nil
}
