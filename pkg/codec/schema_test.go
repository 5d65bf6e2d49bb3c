package codec_test

import (
	"testing"

	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v, err := codec.NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		file    string
		doc     string
		wantErr error
	}{
		{
			name: "valid multi",
			file: "flow.json",
			doc:  `{"format":"multi","version":"1.0","chatbots":[{"name":"Main","templates":[{"id":"a","type":"text","routes":[{"pattern":"hi","connectedTo":"a"}]}]}]}`,
		},
		{
			name: "valid export file",
			file: "bot.json",
			doc:  `{"version":"1.0","templates":[{"id":"a","type":"text","settings":{"delay":2}}]}`,
		},
		{
			name: "valid yaml",
			file: "bot.yaml",
			doc:  "templates:\n  - id: a\n    type: text\n",
		},
		{
			name:    "missing template id",
			file:    "bot.json",
			doc:     `{"templates":[{"type":"text"}]}`,
			wantErr: codec.ErrSchema,
		},
		{
			name:    "bad hook kind",
			file:    "bot.json",
			doc:     `{"templates":[{"id":"a","type":"text","hooks":[{"type":"sometimes","path":"x"}]}]}`,
			wantErr: codec.ErrSchema,
		},
		{
			name:    "no list at all",
			file:    "bot.json",
			doc:     `{"version":"1.0"}`,
			wantErr: codec.ErrSchema,
		},
		{
			name:    "not json",
			file:    "bot.json",
			doc:     `{"templates": `,
			wantErr: codec.ErrMalformed,
		},
		{
			name:    "empty",
			file:    "bot.json",
			doc:     ``,
			wantErr: codec.ErrEmptyDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.file, []byte(tt.doc))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
