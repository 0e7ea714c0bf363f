// Package sync implements the reconciliation pipeline that keeps a Mailchimp
// audience in step with the contact records held in Airtable.
//
// A run is three strictly sequential stages:
//
//   - PairRecords drains the record store's managed view and runs one batched
//     exact-match search keyed on every record's shadow email.
//   - SelectAction classifies every pair and submits all creates and replaces
//     to the list provider as a single batch, waiting for it to finish.
//   - SynchronizeRecords writes the shadow fields back for every pushed
//     record so that the next run sees it as unchanged.
//
// Fetch, search and apply failures abort the run before anything later is
// attempted. Write-back failures are per record: every record is attempted
// and the failures are reported together.
//
// The sync/coordinator subpackage schedules runs with a fixed delay so that
// two runs never overlap, and sync/state keeps the persisted run status.
package sync
