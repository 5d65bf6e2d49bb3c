/*
Package session implements per-contact concurrency control and session data helpers.

Manager serializes work for one contact across goroutines and, with a
ports.DistributedLocker, across replicas. Store keeps per-contact data in a
ports.SessionCache, including the user props collected by templates.
*/
package session
