/*
Package tree is the in-memory model of a password database: groups, entries, attachments and deletion records.

# How it works:

Nodes live in an arena keyed by UUID. Each node keeps the UUID of its parent, and each Group keeps an ordered list of
child UUIDs, so groups and entries may be interleaved in any order. All structural changes go through the Tree, which
keeps both sides of every parent/child link consistent and rejects duplicate UUIDs and cycles.

Entries are edited with Tree.Edit. The pre-edit state is snapshotted into the entry's history, and history is pruned
oldest first according to the MetaData history policy. A failing edit leaves no trace.

Attachment content is stored once in a BinaryPool, addressed by its SHA-256 digest and reference counted across
entries and their history snapshots. Content is evicted when its last reference goes away.

Protected attribute values are held XOR screened in memory with protect.Value.

# General guidelines:
  - A Tree is meant for a single writer. Add your own locking if it's shared between goroutines.
  - Pointers returned by Group and Entry are live. Changing an entry's fields directly bypasses history, so prefer Edit.
  - Use Equal rather than reflect.DeepEqual to compare trees, since screened values use random pads.
*/
package tree
