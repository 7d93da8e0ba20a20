// Package pyruntime identifies the foreign object model and decodes its
// objects.
//
// A Resolver finds the self-typed meta type and the built-in type objects by
// scanning a snapshot. A Reader decodes headers, dicts and primitive values
// and maps type objects to names, using the built-ins a Resolver found and a
// shared cache of user-defined type names.
//
// Decoders read only through regions.Memory and validate every count before
// touching the memory it sizes. Malformed memory yields an error, never a
// panic.
package pyruntime
