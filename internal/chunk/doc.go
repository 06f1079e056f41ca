// Package chunk packs many small records into a few documents of a
// docstore.Store.
//
// A chunk document holds up to Layout.Capacity records, each stored under the
// field "<prefix><id>". A record always carries its own "id" and the
// "chunkDoc" it lives in; the pair never changes for the record's lifetime.
// Capacity is advisory: Append does not guard it, AppendTx does.
package chunk
