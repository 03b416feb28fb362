// Package shm owns the shared-memory segment that backs the task queue and
// the process-shared synchronization primitives carved out of it.
//
// A segment is a file under /dev/shm mapped MAP_SHARED by every cooperating
// process. Its 64-byte header holds the ring indices (front, rear, size) and
// three futex words: the index mutex plus the free-slot and filled-slot
// counting semaphores. Futex operations deliberately use the non-private
// opcodes because waiters live in independently spawned processes; a
// process-private lock cannot serialize them.
//
// The run initiator calls Create and later Remove; workers only Open and
// Close. Nothing here interprets slot contents — that is the queue package's
// job.
package shm
