/*
Package wabuilder is the backend of a visual WhatsApp chatbot builder.

A chatbot is a graph of templates (conversational steps) linked by pattern-matched
routes. The whole flow document lives in the flow_json field of a configuration
record. The Builder loads that document, lets an editor session change one chatbot
of it, and writes it back without touching the other chatbots.

# Concept

The Builder is hexagonal: configuration records, the session cache and the
message log are ports, and the adapters under pkg/adapters provide in-memory,
Redis, libSQL and Postgres implementations. The HTTP and MCP adapters expose the
same operations to the browser editor and to AI agents.

# Key Features

  - Graph editing: templates, routes, hooks and settings with undo and redo.
  - Dual-format documents: legacy single-flow documents are read and upgraded on save.
  - Import and export of one chatbot as JSON or YAML.
  - Remote operations: webhook URL, session cache purge and configuration CRUD.
  - Webhook intake: incoming messages are logged and the reply template is resolved.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/wabuilder"
		"github.com/aretw0/wabuilder/pkg/domain"
	)

	func main() {
		ctx := context.Background()

		b, err := wabuilder.New(wabuilder.WithSiteURL("https://bot.example.com"))
		if err != nil {
			log.Fatal(err)
		}

		s, err := b.Open(ctx, "ChatBot Config", "Support")
		if err != nil {
			log.Fatal(err)
		}

		id, _ := s.AddTemplate(domain.Template{Name: "Welcome", Type: domain.TypeText})
		_ = s.SetStart(id, true)

		if _, err := s.Save(ctx); err != nil {
			log.Fatal(err)
		}
	}
*/
package wabuilder
