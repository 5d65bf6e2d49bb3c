// Package codec reads and writes flow documents.
//
// The canonical persisted shape is
//
//	{"format": "multi", "version": "1.0", "chatbots": [{"name": ..., "templates": [...]}]}
//
// Older documents without a format key are upgraded by shape: a top-level
// "chatbots" list is read as multi, a top-level "templates" list is wrapped
// into a single chatbot. When both are present "chatbots" wins and Ambiguous
// reports it. Encode always writes the multi format, so legacy documents
// converge on their next save.
//
// The single-chatbot export file ({"templates": [...], "version": ...}) is read
// and written by DecodeChatbotFile and EncodeChatbotFile. Both shapes can be
// stored as JSON or YAML; DecodeFile and EncodeFile pick by file extension.
package codec
