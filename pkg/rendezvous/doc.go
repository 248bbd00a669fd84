/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


// Package rendezvous implements cross-process CSP channels on SysV IPC.
//
// A Channel is unbuffered: Write returns only after a reader has taken the
// message. Three counting semaphores drive the protocol. "available" counts
// posted messages, "taken" counts acknowledgements, and a binary poison
// guard protects the poison flag. The message itself travels through a
// small shared memory segment (see package shm).
//
// Every process that wants to use a channel materializes its own descriptor
// from the same keys: one process calls Open, the others call Attach.
//
// Concurrency contract:
//
//   - The read and write mutexes on a Channel serialize goroutines of one
//     process only. Cross-process correctness comes from the semaphore
//     handshake, which assumes one logical writer and one logical reader at
//     a time. Several writer or reader processes on one channel are out of
//     contract; the shared segment would be overwritten.
//   - When several waiters block on one semaphore the kernel wakes them in
//     no particular order. There is no FIFO guarantee.
//   - Write and Read block without timeout. Only Poison or Close releases
//     them early.
//
// Alternation: a coordinator calls Enable on each guard, picks one with
// IsSelectable, calls Select on it and Disable on every other guard it
// enabled. Disable on the selected guard ends its round and makes it
// eligible for the next one.
//
// Poison is cooperative. Poison sets a flag shared by all attached processes
// and releases one blocked writer and one blocked reader, which then return
// ErrChannelPoisoned. Other calls only notice poison through CheckPoison,
// unless the channel was opened with the poison gate enabled.
package rendezvous
