// Package fs is the filesystem seam behind file-backed page storage.
//
// Spill storage needs only a handful of calls: create a fresh file, size it,
// hand its descriptor to mmap and remove it again. [OS] performs them with the
// os package; [Faulty] wraps any [FileSystem] and fails chosen calls so the
// cleanup paths of the storage layer can be tested.
package fs
