/*
Package ports defines the driven ports (interfaces) of the chatbot builder.

These interfaces decouple the builder from storage backends, so the same flow
editing and routing logic runs against memory, Redis, libSQL or Postgres.

# Key Interfaces

  - ConfigStore: Named configuration records holding the flow document.
  - SessionCache: Per-contact session data under a common key prefix.
  - MessageLog: The chat log used for routing and webhook deduplication.
  - DistributedLocker: Distributed locking for concurrent webhook intake.

Every adapter is expected to pass the Run*Contract suites in this package.
*/
package ports
