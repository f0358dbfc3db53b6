// Package orders numbers vendor orders with per-vendor sequences.
//
// Each vendor's orders are numbered 1, 2, 3... by allocating from a keyed
// sequence store. Allocation is a plain read-modify-write, so two concurrent
// allocations for the same vendor can return the same number. The
// create-order-safe job runs serialized on the vendor id and never collides;
// create-order-unsafe skips serialization and exists to show the collision.
//
// Simulate fires a batch of parallel submissions for one vendor and Report
// inspects the resulting order log for duplicate numbers.
package orders
