// Package dataset defines the logical document model shared by every
// gateway component.
//
// A dataset is a free-form field map identified by a Key. Keys are either a
// single token or an ordered list of tokens drawn from the alphabet
// [A-Za-z0-9_-]. The storage engine only understands flat string IDs, so
// list keys are joined with a comma for storage and split again on the way
// out; because the key alphabet excludes the comma, the round trip is total
// over valid keys.
//
//	k := dataset.ListKey("course1", "week2")
//	k.StorageID()                       // "course1,week2"
//	dataset.ParseStorageID("course1,week2") // == k
//
// Keys marshal to JSON as a plain string or a string array, matching the
// wire format clients send.
package dataset
