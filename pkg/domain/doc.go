/*
Package domain contains the core domain models of the chatbot builder.

It defines the flow document that the visual editor edits and the backend persists,
plus the configuration record that holds it and the chat log used by routing.
This package is kept free of I/O and persistence concerns.

# Key Entities

  - Flow: The persisted document (`flow_json`), a versioned list of Chatbots.
  - Template: One conversational step; carries its message, routes, hooks and settings.
  - Route: A pattern-matched transition from one template to another.
  - Hook: A dotted path naming server-side logic invoked at a template lifecycle point.
  - BotConfig: The named configuration record that stores the flow document.
  - ChatMessage: One entry of the per-contact message log.
*/
package domain
