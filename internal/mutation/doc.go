// Package mutation performs every write the client makes.
//
// Each operation is a fixed sequence with a single failure path:
//
//  1. validate the form locally; a failure returns a field-scoped
//     validation error and nothing is sent
//  2. authorize: a signed-in user is required, and changing or deleting a
//     book or comment also requires owning it
//  3. upload the new image, if any; a failed upload aborts the mutation
//     before any record is written
//  4. write the record
//  5. invalidate every cached query whose data could include it
//  6. report the Result to the Notifier
//
// Validation errors are returned to the form only and are not reported to
// the Notifier. Steps 3 to 5 run detached from the caller's context with
// their own timeout: a mutation that has started always finishes or fails
// on its own, even if the page that started it is gone.
//
// Ownership checks here are for the user's benefit. The server makes the
// final decision.
package mutation
