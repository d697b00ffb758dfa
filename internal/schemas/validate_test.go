package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJSONString_GenerationOutput(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
		field   string
	}{
		{"valid", `{"title": "台積電法說會", "body": "內容"}`, false, ""},
		{"extra fields allowed", `{"title": "t", "body": "b", "hashtags": ["x"]}`, false, ""},
		{"missing body", `{"title": "t"}`, true, "(root)"},
		{"empty title", `{"title": "", "body": "b"}`, true, "title"},
		{"wrong type", `{"title": 5, "body": "b"}`, true, "title"},
		{"not json", `here you go: title`, true, "(root)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSONString(GenerationOutput, tt.doc)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.NotEmpty(t, ve.Errors)
			assert.Equal(t, tt.field, ve.Errors[0].Field)
		})
	}
}

func TestValidateJSONString_Quotes(t *testing.T) {
	assert.NoError(t, ValidateJSONString(Quotes, `{"quotes": [{"symbol": "2330", "change_pct": 9.9}]}`))
	assert.Error(t, ValidateJSONString(Quotes, `{"quotes": [{"symbol": "2330"}]}`))
}

func TestValidateJSONString_UnknownSchema(t *testing.T) {
	err := ValidateJSONString("nope", `{}`)
	var le *SchemaLoadError
	assert.ErrorAs(t, err, &le)
}
