// Package slabq implements a persistent, file-backed blocking FIFO queue for
// inter-process or durable producer/consumer handoff on a single host.
// Elements are serialized into append-only segment files ("slabs"); a
// consumer's read position is maintained atomically in a memory-mapped
// cursor file so that progress survives process restarts.
//
// A Queue is opened with New, which creates the storage directory's first
// slab if it is empty and otherwise resumes from whatever slab and cursor
// files are already there. A single producer may call Offer, Add, Put, or
// OfferTimeout; a single consumer may call Poll, Peek, Take, PollTimeout,
// Element, or Remove. Iterator gives any number of readers a weakly
// consistent, non-destructive traversal of the queue's current contents.
package slabq
