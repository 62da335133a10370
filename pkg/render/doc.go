// Package render regenerates configuration files derived from the set of
// present units, such as a shell startup file that puts installed tools on
// PATH.
//
// Rendering is deterministic: the same capability set always produces the
// same bytes. Existing files are only replaced when the content differs,
// the previous content is first copied to a sibling backup, and every
// write goes through a temporary file and a rename.
package render
