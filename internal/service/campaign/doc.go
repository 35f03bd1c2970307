// Package campaign implements the consent-aware campaign dispatch pipeline.
//
// Enqueue resolves granted contacts at the query level, creates pending
// recipients with unique unsubscribe tokens and hands the campaign to a
// Scheduler. Dispatch then sends to every pending recipient sequentially
// through one channel, re-checking consent and throttling between sends.
// Unsubscribe is the read path for the recipient token.
//
// Repository implementations live in repository/postgres/.
package campaign
